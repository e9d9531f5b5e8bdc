package inspect

import "github.com/gabriel-vasile/mimetype"

// DetectMIME sniffs the content type of data. When sniffing only yields the
// generic octet-stream (legacy .doc files sometimes do), the client-declared
// type is trusted instead if one was sent.
func DetectMIME(data []byte, declared string) string {
	mt := mimetype.Detect(data)
	if mt.Is("application/octet-stream") && declared != "" {
		return declared
	}
	return mt.String()
}

// MIMEAllowed reports whether mime is in the allowed list, matching aliases
// via mimetype's equality (e.g. image/jpg vs image/jpeg).
func MIMEAllowed(mime string, allowed []string) bool {
	for _, a := range allowed {
		if mime == a || mimetype.EqualsAny(mime, a) {
			return true
		}
	}
	return false
}
