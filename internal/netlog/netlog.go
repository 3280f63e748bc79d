// internal/netlog/netlog.go
// Package netlog reconstructs network request records from a recorded
// devtools protocol log. The log holds raw {method, params} entries exactly
// as the browser emitted them; this package replays the Network domain
// events offline and folds them into one record per request, with redirect
// hops split into separate records.
package netlog

import (
	"strings"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/network"
	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/pharos-cli/api/schemas"
)

// Records replays the Network domain events in log and returns the request
// records in first-seen order. Entries with unparseable params are skipped;
// the log may contain events from other domains, which are ignored.
func Records(log schemas.DevtoolsLog) []*schemas.NetworkRecord {
	var ordered []*schemas.NetworkRecord
	open := make(map[network.RequestID]*schemas.NetworkRecord)

	for _, entry := range log {
		switch entry.Method {
		case string(cdproto.EventNetworkRequestWillBeSent):
			var ev network.EventRequestWillBeSent
			if err := json.Unmarshal(entry.Params, &ev); err != nil || ev.Request == nil {
				continue
			}
			// A redirectResponse means the prior hop under this request ID
			// completed with a 3xx; finalize it and open a fresh record for
			// the next hop.
			if prev, ok := open[ev.RequestID]; ok && ev.RedirectResponse != nil {
				applyResponse(prev, ev.RedirectResponse)
				prev.Finished = true
			}
			rec := &schemas.NetworkRecord{
				RequestID:    string(ev.RequestID),
				URL:          ev.Request.URL,
				Method:       ev.Request.Method,
				ResourceType: string(ev.Type),
			}
			open[ev.RequestID] = rec
			ordered = append(ordered, rec)

		case string(cdproto.EventNetworkResponseReceived):
			var ev network.EventResponseReceived
			if err := json.Unmarshal(entry.Params, &ev); err != nil || ev.Response == nil {
				continue
			}
			if rec, ok := open[ev.RequestID]; ok {
				applyResponse(rec, ev.Response)
			}

		case string(cdproto.EventNetworkRequestServedFromCache):
			var ev network.EventRequestServedFromCache
			if err := json.Unmarshal(entry.Params, &ev); err != nil {
				continue
			}
			if rec, ok := open[ev.RequestID]; ok {
				rec.FromCache = true
			}

		case string(cdproto.EventNetworkLoadingFinished):
			var ev network.EventLoadingFinished
			if err := json.Unmarshal(entry.Params, &ev); err != nil {
				continue
			}
			if rec, ok := open[ev.RequestID]; ok {
				rec.Finished = true
				rec.EncodedDataLength = ev.EncodedDataLength
			}

		case string(cdproto.EventNetworkLoadingFailed):
			var ev network.EventLoadingFailed
			if err := json.Unmarshal(entry.Params, &ev); err != nil {
				continue
			}
			if rec, ok := open[ev.RequestID]; ok {
				rec.Finished = true
				rec.Failed = true
				rec.FailureReason = ev.ErrorText
				rec.Canceled = ev.Canceled
			}
		}
	}
	return ordered
}

// UserAgent returns the User-Agent header of the first request in the log
// that carries one, or the empty string if none does.
func UserAgent(log schemas.DevtoolsLog) string {
	for _, entry := range log {
		if entry.Method != string(cdproto.EventNetworkRequestWillBeSent) {
			continue
		}
		var ev network.EventRequestWillBeSent
		if err := json.Unmarshal(entry.Params, &ev); err != nil || ev.Request == nil {
			continue
		}
		for name, value := range ev.Request.Headers {
			if !strings.EqualFold(name, "User-Agent") {
				continue
			}
			if ua, ok := value.(string); ok && ua != "" {
				return ua
			}
		}
	}
	return ""
}

func applyResponse(rec *schemas.NetworkRecord, resp *network.Response) {
	rec.StatusCode = resp.Status
	rec.MimeType = resp.MimeType
	rec.Protocol = resp.Protocol
	rec.EncodedDataLength = resp.EncodedDataLength
	if resp.FromDiskCache || resp.FromServiceWorker {
		rec.FromCache = true
	}
}
