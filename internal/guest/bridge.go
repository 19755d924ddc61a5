package guest

import (
	"fmt"
	"io"
)

// BridgeSyscall is the non-standard syscall number reserved for the
// host-bridge side channel. The guest passes a buffer address and length;
// the bytes are forwarded to the host-side transport.
const BridgeSyscall = 500

// BridgeTransport receives messages the guest sends over the bridge
// syscall.
type BridgeTransport interface {
	Send(p []byte) error
}

// NewLogTransport returns the default transport: messages are framed onto w
// one per line. It stands in until a real host channel is attached.
func NewLogTransport(w io.Writer) BridgeTransport {
	return &logTransport{w: w}
}

type logTransport struct {
	w io.Writer
}

func (t *logTransport) Send(p []byte) error {
	_, err := fmt.Fprintf(t.w, "[9P] %s\n", p)
	return err
}
