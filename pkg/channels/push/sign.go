package push

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const (
	HeaderSignature = "X-Push-Signature"
	HeaderTimestamp = "X-Push-Timestamp"
)

// Sign computes HMAC-SHA256(secret, timestamp + "." + body) as hex.
func Sign(secret string, body []byte, ts time.Time) string {
	h := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(h, "%d.", ts.Unix())
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// SignRequest sets the signature headers on req.
func SignRequest(req *http.Request, secret string, body []byte, ts time.Time) {
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts.Unix(), 10))
	req.Header.Set(HeaderSignature, Sign(secret, body, ts))
}

// Verify checks the signature headers of a gateway request. Requests older
// than maxAge, or more than a minute in the future, are rejected.
func Verify(secret string, body []byte, header http.Header, maxAge time.Duration, now time.Time) error {
	sig := header.Get(HeaderSignature)
	raw := header.Get(HeaderTimestamp)
	if sig == "" || raw == "" {
		return fmt.Errorf("%w: missing headers", ErrInvalidSignature)
	}

	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
	}
	ts := time.Unix(unix, 0)
	if age := now.Sub(ts); maxAge > 0 && (age > maxAge || age < -time.Minute) {
		return fmt.Errorf("%w: timestamp outside window", ErrInvalidSignature)
	}

	if !hmac.Equal([]byte(Sign(secret, body, ts)), []byte(sig)) {
		return fmt.Errorf("%w: signature mismatch", ErrInvalidSignature)
	}
	return nil
}
