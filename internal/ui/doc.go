// Package ui provides terminal output for the aprsgate CLI.
//
// Most components follow a "render once and print" pattern:
//
//   - Banner: command title with its effective parameters
//   - Result: success or failure box, failures carry hints
//   - Confirm: warning box followed by a y/N prompt
//   - RenderGateways: table of gateways found by discovery
//
// MonitorModel is the one interactive component. It is a Bubble Tea model
// that connects to a gateway's live feed, shows incoming and outgoing messages
// in a scrolling viewport and sends whatever is typed into its input line.
//
//	fmt.Println(ui.NewBanner("aprsgate", "aprsgate serve",
//	    ui.Detail{Key: "HTTP", Value: ":8080"},
//	    ui.Detail{Key: "APRS-IS", Value: ":14580"},
//	))
//
//	if err := ui.RunMonitor(ctx, "ws://192.168.4.16:8080/ws"); err != nil {
//	    return err
//	}
//
// # Logging Integration
//
// Logging is controlled via the APRSGATE_LOG_LEVEL environment variable.
// When unset or empty, zap logging is silent so the UI output stays clean.
package ui
