// internal/driver/recorder.go
package driver

import (
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/cdproto"
	cdplog "github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/tracing"
	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/pharos-cli/api/schemas"
)

// recorder is the single sink for protocol events on a session. It owns the
// devtools log, console and trace buffers and the page lifecycle signals the
// driver blocks on. Handlers run on the event dispatch goroutine and must
// never block.
type recorder struct {
	mu sync.Mutex

	capturingLog bool
	logEntries   schemas.DevtoolsLog

	capturingConsole bool
	console          []schemas.ConsoleMessage

	collectingTrace bool
	traceEvents     []json.RawMessage
	traceDone       chan struct{}
	traceDoneClosed bool

	// loadFired is armed per navigation and closed when the page's load
	// event arrives.
	loadFired chan struct{}

	// mainFrameURL follows the top frame through redirects.
	mainFrameURL string

	// onDialog, when set, is dispatched on its own goroutine for every
	// javascript dialog the page opens.
	onDialog func(e *page.EventJavascriptDialogOpening)
}

func newRecorder() *recorder {
	return &recorder{}
}

// handleEvent dispatches one protocol event. It is installed as the session's
// chromedp.ListenTarget callback.
func (r *recorder) handleEvent(ev interface{}) {
	switch e := ev.(type) {
	// -- Network Events --
	case *network.EventRequestWillBeSent:
		r.appendLog(cdproto.EventNetworkRequestWillBeSent, e)
	case *network.EventResponseReceived:
		r.appendLog(cdproto.EventNetworkResponseReceived, e)
	case *network.EventRequestServedFromCache:
		r.appendLog(cdproto.EventNetworkRequestServedFromCache, e)
	case *network.EventDataReceived:
		r.appendLog(cdproto.EventNetworkDataReceived, e)
	case *network.EventLoadingFinished:
		r.appendLog(cdproto.EventNetworkLoadingFinished, e)
	case *network.EventLoadingFailed:
		r.appendLog(cdproto.EventNetworkLoadingFailed, e)

	// -- Page Lifecycle Events --
	case *page.EventFrameNavigated:
		r.appendLog(cdproto.EventPageFrameNavigated, e)
		r.handleFrameNavigated(e)
	case *page.EventLoadEventFired:
		r.appendLog(cdproto.EventPageLoadEventFired, e)
		r.handleLoadEventFired()
	case *page.EventJavascriptDialogOpening:
		r.handleDialogOpening(e)

	// -- Console and Runtime Events --
	case *runtime.EventConsoleAPICalled:
		r.handleConsoleAPICalled(e)
	case *cdplog.EventEntryAdded:
		r.handleLogEntryAdded(e)
	case *runtime.EventExceptionThrown:
		r.handleExceptionThrown(e)

	// -- Trace Events --
	case *tracing.EventDataCollected:
		r.handleTraceData(e)
	case *tracing.EventTracingComplete:
		r.handleTracingComplete()
	}
}

// -- Devtools Log Capture --

func (r *recorder) beginDevtoolsLog() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capturingLog = true
	r.logEntries = make(schemas.DevtoolsLog, 0, 64)
}

func (r *recorder) endDevtoolsLog() schemas.DevtoolsLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capturingLog = false
	entries := r.logEntries
	r.logEntries = nil
	return entries
}

func (r *recorder) appendLog(method cdproto.MethodType, params any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.capturingLog {
		return
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return
	}
	r.logEntries = append(r.logEntries, schemas.DevtoolsLogEntry{
		Method: string(method),
		Params: raw,
	})
}

// -- Page Lifecycle --

// armLoadEvent resets the load signal for an upcoming navigation and returns
// the channel that closes when the load event fires.
func (r *recorder) armLoadEvent() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loadFired = make(chan struct{})
	return r.loadFired
}

func (r *recorder) handleLoadEventFired() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loadFired != nil {
		close(r.loadFired)
		r.loadFired = nil
	}
}

func (r *recorder) handleFrameNavigated(e *page.EventFrameNavigated) {
	if e.Frame == nil || e.Frame.ParentID != "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mainFrameURL = e.Frame.URL
}

// topFrameURL returns the URL the top frame last navigated to, empty before
// the first navigation commits.
func (r *recorder) topFrameURL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mainFrameURL
}

func (r *recorder) setDialogHandler(handler func(e *page.EventJavascriptDialogOpening)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDialog = handler
}

func (r *recorder) handleDialogOpening(e *page.EventJavascriptDialogOpening) {
	r.mu.Lock()
	handler := r.onDialog
	r.mu.Unlock()
	if handler != nil {
		// The dialog blocks the page until answered; answering goes back
		// through the protocol, so it cannot run on the dispatch goroutine.
		go handler(e)
	}
}

// -- Console Capture --

func (r *recorder) beginConsoleCapture() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capturingConsole = true
	r.console = make([]schemas.ConsoleMessage, 0, 16)
}

func (r *recorder) endConsoleCapture() []schemas.ConsoleMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capturingConsole = false
	messages := r.console
	r.console = nil
	return messages
}

func (r *recorder) appendConsole(msg schemas.ConsoleMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.capturingConsole {
		return
	}
	r.console = append(r.console, msg)
}

func (r *recorder) handleConsoleAPICalled(e *runtime.EventConsoleAPICalled) {
	var textBuilder strings.Builder
	for i, arg := range e.Args {
		if i > 0 {
			textBuilder.WriteString(" ")
		}
		// Prefer the serialized value, fall back to the remote object
		// description, then to a bare type marker.
		var val interface{}
		if arg.Value != nil && json.Unmarshal(arg.Value, &val) == nil {
			textBuilder.WriteString(fmt.Sprintf("%v", val))
		} else if arg.Description != "" {
			textBuilder.WriteString(arg.Description)
		} else {
			textBuilder.WriteString(fmt.Sprintf("[%s]", arg.Type))
		}
	}

	msg := schemas.ConsoleMessage{
		Source:    "console-api",
		Level:     string(e.Type),
		Text:      textBuilder.String(),
		Timestamp: e.Timestamp.Time(),
	}
	if e.StackTrace != nil && len(e.StackTrace.CallFrames) > 0 {
		frame := e.StackTrace.CallFrames[0]
		msg.URL = frame.URL
		msg.Line = frame.LineNumber
	}
	r.appendConsole(msg)
}

func (r *recorder) handleLogEntryAdded(e *cdplog.EventEntryAdded) {
	if e.Entry == nil {
		return
	}
	r.appendConsole(schemas.ConsoleMessage{
		Source:    string(e.Entry.Source),
		Level:     string(e.Entry.Level),
		Text:      e.Entry.Text,
		URL:       e.Entry.URL,
		Line:      e.Entry.LineNumber,
		Timestamp: e.Entry.Timestamp.Time(),
	})
}

func (r *recorder) handleExceptionThrown(e *runtime.EventExceptionThrown) {
	if e.ExceptionDetails == nil {
		return
	}
	// The description usually carries the message plus the stack trace.
	text := e.ExceptionDetails.Text
	if e.ExceptionDetails.Exception != nil && e.ExceptionDetails.Exception.Description != "" {
		text = e.ExceptionDetails.Exception.Description
	}
	r.appendConsole(schemas.ConsoleMessage{
		Source:    "exception",
		Level:     "error",
		Text:      text,
		URL:       e.ExceptionDetails.URL,
		Line:      e.ExceptionDetails.LineNumber,
		Timestamp: e.Timestamp.Time(),
	})
}

// -- Trace Collection --

func (r *recorder) beginTrace() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collectingTrace = true
	r.traceEvents = nil
	r.traceDone = make(chan struct{})
	r.traceDoneClosed = false
}

// traceComplete returns the channel closed once the browser reports that
// trace delivery has finished. The completion event may land before the
// caller starts waiting, so the channel stays valid after closing.
func (r *recorder) traceComplete() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.traceDone == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	return r.traceDone
}

// takeTrace drains the collected events into a trace and stops collection.
func (r *recorder) takeTrace() *schemas.Trace {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collectingTrace = false
	events := r.traceEvents
	r.traceEvents = nil
	if events == nil {
		events = []json.RawMessage{}
	}
	return &schemas.Trace{TraceEvents: events}
}

func (r *recorder) handleTraceData(e *tracing.EventDataCollected) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.collectingTrace {
		return
	}
	for _, item := range e.Value {
		r.traceEvents = append(r.traceEvents, json.RawMessage(item))
	}
}

func (r *recorder) handleTracingComplete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.traceDone != nil && !r.traceDoneClosed {
		close(r.traceDone)
		r.traceDoneClosed = true
	}
}
