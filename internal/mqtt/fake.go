package mqtt

import (
	"sync"

	"github.com/sweeney/contact-sensor/internal/stack"
)

// Message is one publish recorded by FakeTransport.
type Message struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// FakeTransport records traffic for test assertions. Connect, Disconnect and
// RequestIdentify drive the link handler the way a broker would.
type FakeTransport struct {
	mu      sync.Mutex
	topics  Topics
	state   State
	handler stack.LinkHandler

	// Commands and Reports contain everything sent, in order.
	Commands []stack.Command
	Reports  []stack.Report

	// Messages contains the payloads that would have been published.
	Messages []Message

	// SendError, if set, is returned by SendCommand and SendReport.
	SendError error

	// StartError, if set, is returned by Start.
	StartError error

	Started   bool
	Leaves    int
	Closed    bool
	connected bool
}

var _ stack.Transport = (*FakeTransport)(nil)

// NewFakeTransport creates a FakeTransport publishing under topics.
func NewFakeTransport(topics Topics) *FakeTransport {
	return &FakeTransport{topics: topics}
}

// Start records the link handler.
func (f *FakeTransport) Start(h stack.LinkHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StartError != nil {
		return f.StartError
	}
	f.handler = h
	f.Started = true
	return nil
}

// SendCommand records the command and its payload.
func (f *FakeTransport) SendCommand(c stack.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendError != nil {
		return f.SendError
	}
	payload, err := FormatCommand(c)
	if err != nil {
		return err
	}
	f.Commands = append(f.Commands, c)
	f.Messages = append(f.Messages, Message{Topic: f.topics.State, Payload: payload})
	return nil
}

// SendReport records the report and the resulting state payload.
func (f *FakeTransport) SendReport(r stack.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendError != nil {
		return f.SendError
	}
	f.Reports = append(f.Reports, r)
	if !f.state.Apply(r) {
		return nil
	}
	payload, err := f.state.Payload()
	if err != nil {
		return err
	}
	f.Messages = append(f.Messages, Message{Topic: f.topics.State, Payload: payload, Retained: true})
	return nil
}

// Leave counts the call and drops the link.
func (f *FakeTransport) Leave() error {
	f.mu.Lock()
	f.Leaves++
	f.state.Reset()
	f.mu.Unlock()
	f.Disconnect()
	return nil
}

// Close marks the transport closed.
func (f *FakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	f.connected = false
	return nil
}

// Linked reports whether Start has installed a link handler.
func (f *FakeTransport) Linked() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler != nil
}

// IsConnected reports the simulated session state.
func (f *FakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// Connect simulates a broker session coming up.
func (f *FakeTransport) Connect() {
	f.mu.Lock()
	f.connected = true
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h.LinkUp()
	}
}

// Disconnect simulates losing the broker session.
func (f *FakeTransport) Disconnect() {
	f.mu.Lock()
	f.connected = false
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h.LinkDown()
	}
}

// RequestIdentify simulates a set message carrying identify.
func (f *FakeTransport) RequestIdentify(seconds uint16) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h.IdentifyRequest(seconds)
	}
}

// Snapshot returns copies of the recorded commands, reports and messages.
func (f *FakeTransport) Snapshot() ([]stack.Command, []stack.Report, []Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]stack.Command(nil), f.Commands...),
		append([]stack.Report(nil), f.Reports...),
		append([]Message(nil), f.Messages...)
}

// Reset clears recorded traffic and injected errors.
func (f *FakeTransport) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Commands = nil
	f.Reports = nil
	f.Messages = nil
	f.SendError = nil
	f.StartError = nil
	f.state.Reset()
}
