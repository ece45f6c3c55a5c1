/*
File Name:  Exit.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner
*/

package core

// Exit codes signal why the application exited. Clients are encouraged to
// log additional details in a log file. 3rd party clients may define
// additional exit codes.
const (
	ExitSuccess            = 0          // Returned by Init and LoadConfig on success.
	ExitErrorConfigAccess  = 1          // Error accessing the config file.
	ExitErrorConfigRead    = 2          // Error reading the config file.
	ExitErrorConfigParse   = 3          // Error parsing the config file.
	ExitErrorLogInit       = 4          // Error initializing log file.
	ExitParamApiKeyInvalid = 5          // API key parameter is invalid.
	ExitGraceful           = 6          // Graceful shutdown.
	STATUS_CONTROL_C_EXIT  = 0xC000013A // The application terminated as a result of a CTRL+C. This is a Windows NTSTATUS value.
)
