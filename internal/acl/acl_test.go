package acl

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWildcardCoversWholeSegment(t *testing.T) {
	l, err := New(AllowList, []string{"192.168.10.*"}, nil)
	require.NoError(t, err)

	for i := 0; i <= 255; i++ {
		addr := fmt.Sprintf("192.168.10.%d", i)
		assert.True(t, l.IsAllowed(addr), addr)
	}
	assert.False(t, l.IsAllowed("192.168.11.1"))
	assert.False(t, l.IsAllowed("192.168.10.7.1"))
}

func TestIsAllowed(t *testing.T) {
	tests := []struct {
		name  string
		mode  Mode
		allow []string
		deny  []string
		addr  string
		want  bool
	}{
		{name: "no rules allows all", mode: NoRules, deny: []string{"*.*.*.*"}, addr: "1.2.3.4", want: true},
		{name: "allow exact", mode: AllowList, allow: []string{"10.0.0.5"}, addr: "10.0.0.5", want: true},
		{name: "allow miss", mode: AllowList, allow: []string{"10.0.0.5"}, addr: "10.0.0.6", want: false},
		{name: "allow wildcard", mode: AllowList, allow: []string{"10.0.0.*"}, addr: "10.0.0.5", want: true},
		{name: "allow wildcard other net", mode: AllowList, allow: []string{"10.0.0.*"}, addr: "10.0.1.5", want: false},
		{name: "allow empty list", mode: AllowList, addr: "10.0.0.5", want: false},
		{name: "allow with port", mode: AllowList, allow: []string{"10.0.0.*"}, addr: "10.0.0.5:4242", want: true},
		{name: "allow middle wildcard", mode: AllowList, allow: []string{"10.*.0.1"}, addr: "10.99.0.1", want: true},
		{name: "deny exact", mode: DenyList, deny: []string{"127.0.0.2"}, addr: "127.0.0.2", want: false},
		{name: "deny other", mode: DenyList, deny: []string{"127.0.0.2"}, addr: "127.0.0.1", want: true},
		{name: "deny wildcard", mode: DenyList, deny: []string{"192.168.*.*"}, addr: "192.168.4.16", want: false},
		{name: "deny mapped v6", mode: DenyList, deny: []string{"127.0.0.1"}, addr: "[::ffff:127.0.0.1]:80", want: false},
		{name: "deny empty list", mode: DenyList, addr: "8.8.8.8", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.mode, tt.allow, tt.deny)
			require.NoError(t, err)
			assert.Equal(t, tt.want, l.IsAllowed(tt.addr))
		})
	}
}

func TestNilListAllows(t *testing.T) {
	var l *List
	assert.True(t, l.IsAllowed("1.1.1.1"))
}

func TestParseRuleRejectsEmptySegments(t *testing.T) {
	_, err := ParseRule("10..0.1")
	assert.Error(t, err)
	_, err = ParseRule("  ")
	assert.Error(t, err)

	l := &List{}
	require.NoError(t, l.SetAllow([]string{"10.0.0.1"}))
	assert.Error(t, l.SetAllow([]string{"10.0.0.1", "bad..rule"}))
	assert.Equal(t, []string{"10.0.0.1"}, l.Allowed(), "failed update must keep the old list")
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": NoRules, "none": NoRules, "Allow": AllowList, "deny": DenyList, "blacklist": DenyList} {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseMode("maybe")
	assert.Error(t, err)
}

func TestConcurrentUpdateAndEvaluate(t *testing.T) {
	l, err := New(DenyList, nil, []string{"10.0.0.*"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = l.SetDeny([]string{fmt.Sprintf("10.0.%d.*", j%4)})
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = l.IsAllowed("10.0.2.1")
			}
		}()
	}
	wg.Wait()
	assert.Len(t, l.Denied(), 1)
}
