package ingest

// Classify infers the client class from the payload shape. A submission is
// offline capable only when it carries both a globalId and a terminalId.
func Classify(sub Submission) ClientClass {
	if sub.GlobalID != "" && sub.TerminalID != "" {
		return OfflineCapable
	}
	return OnlineOnly
}
