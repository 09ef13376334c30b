package urls

// Reference documents shown in CLI hints.

// APRSISConnecting describes the APRS-IS login line and server banner.
const APRSISConnecting = "https://www.aprs-is.net/Connecting.aspx"

// APRSSpec is the APRS 1.0.1 protocol reference, for position report format.
const APRSSpec = "http://www.aprs.org/doc/APRS101.PDF"

// CGISpec is RFC 3875, the CGI/1.1 interface used for CGI routes.
const CGISpec = "https://www.rfc-editor.org/rfc/rfc3875"

// WebSocketSpec is RFC 6455.
const WebSocketSpec = "https://www.rfc-editor.org/rfc/rfc6455"
