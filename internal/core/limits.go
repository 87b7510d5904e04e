package core

const (
	MaxAttachments  = 10
	MaxContentLen   = 4000
	MaxFileNameLen  = 255
	escapedRuneSize = 12 // a non-BMP rune written as two \u escapes
)

// FrameBudget is the largest inbound frame a send_message at the limits can
// need when every attachment holds maxUpload bytes. A read limit below it
// would drop connections for valid messages.
func FrameBudget(maxUpload int64) int64 {
	if maxUpload < 0 {
		maxUpload = 0
	}
	perFile := (maxUpload+2)/3*4 + MaxFileNameLen*escapedRuneSize + 64
	return MaxAttachments*perFile + MaxContentLen*escapedRuneSize + 1024
}
