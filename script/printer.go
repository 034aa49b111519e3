package script

import (
	"bytes"
	"context"
	"io"
	"sync"

	ros "github.com/risor-io/risor/os"
)

// PrintCapture collects everything the print builtins write during an
// evaluation so it can be attached to the execution result instead of
// going to the process stdout. Pass it as the stdout writer to Evaluate.
type PrintCapture struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func NewPrintCapture() *PrintCapture {
	return &PrintCapture{}
}

func (p *PrintCapture) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.Write(b)
}

// String returns everything printed so far.
func (p *PrintCapture) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.String()
}

// captureOS is the operating system surface handed to the Risor VM. It
// delegates everything to the host except stdout, which is routed to the
// supplied writer. The print builtins resolve stdout through this seam, so
// overriding it here is what makes output capture work; a print global
// injected at evaluation time would be shadowed by the default builtin.
type captureOS struct {
	*ros.SimpleOS
	stdout *writerFile
}

func newCaptureOS(ctx context.Context, stdout io.Writer) *captureOS {
	return &captureOS{
		SimpleOS: ros.NewSimpleOS(ctx),
		stdout:   &writerFile{w: stdout},
	}
}

func (o *captureOS) Stdout() ros.File {
	return o.stdout
}

// writerFile adapts an io.Writer to the file interface Risor expects for
// stdout. It is write-only.
type writerFile struct {
	w io.Writer
}

func (f *writerFile) Read(p []byte) (int, error) {
	return 0, io.EOF
}

func (f *writerFile) Write(p []byte) (int, error) {
	return f.w.Write(p)
}

func (f *writerFile) Close() error {
	return nil
}

func (f *writerFile) Stat() (ros.FileInfo, error) {
	return ros.NewFileInfo(ros.GenericFileInfoOpts{Name: "stdout"}), nil
}
