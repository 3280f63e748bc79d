// internal/gather/loadfailure.go
package gather

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/xkilldash9x/pharos-cli/api/schemas"
)

// dnsFailureReasons are the exact browser error texts treated as DNS
// resolution failures. Reasons with the net::ERR_DNS_ prefix are matched
// separately.
var dnsFailureReasons = map[string]bool{
	"net::ERR_NAME_NOT_RESOLVED":      true,
	"net::ERR_NAME_RESOLUTION_FAILED": true,
}

// ClassifyPageLoad inspects the network records of a finished pass and
// decides whether the main document loaded well enough to audit. It returns
// nil when the load looks usable.
func ClassifyPageLoad(records []*schemas.NetworkRecord, targetURL string) *schemas.PageLoadError {
	main := FindMainRecord(records, targetURL)
	if main == nil {
		return schemas.NewNoDocumentRequestError(targetURL)
	}
	if main.Failed {
		if isDNSFailure(main.FailureReason) {
			return schemas.NewDNSFailureError(targetURL, main.FailureReason)
		}
		return schemas.NewFailedDocumentRequestError(targetURL, main.FailureReason)
	}
	if main.StatusCode >= 400 {
		return schemas.NewErroredDocumentRequestError(targetURL, strconv.FormatInt(main.StatusCode, 10))
	}
	return nil
}

func isDNSFailure(reason string) bool {
	return dnsFailureReasons[reason] || strings.HasPrefix(reason, "net::ERR_DNS_")
}

// FindMainRecord returns the first record whose URL matches targetURL with
// fragments ignored on both sides.
func FindMainRecord(records []*schemas.NetworkRecord, targetURL string) *schemas.NetworkRecord {
	want := normalizeForMatch(targetURL)
	for _, rec := range records {
		if normalizeForMatch(rec.URL) == want {
			return rec
		}
	}
	return nil
}

// normalizeForMatch strips the fragment and gives host-only URLs an explicit
// root path so "http://a.test" and "http://a.test/#top" compare equal.
func normalizeForMatch(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		if i := strings.IndexByte(raw, '#'); i >= 0 {
			return raw[:i]
		}
		return raw
	}
	u.Fragment = ""
	u.RawFragment = ""
	if u.Host != "" && u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}
