// Package urls holds the reference links printed in CLI hints.
//
//	fmt.Printf("Login format: %s\n", urls.APRSISConnecting)
package urls
