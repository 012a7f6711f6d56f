// Package sender transmits a batch of derived instances to the configured
// downstream archive over a single DICOM association, retrying transient
// network failures with exponential backoff and treating the whole batch as
// succeeding only if every instance does.
package sender

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"syscall"
	"time"

	"github.com/caio-sobreiro/netrt/client"
	dicomerrors "github.com/caio-sobreiro/netrt/errors"
)

// Destination identifies the downstream archive.
type Destination struct {
	Host          string
	Port          int
	CalledAETitle string
	CallingAETitle string
}

// Instance is one object to transmit.
type Instance struct {
	SOPClassUID    string
	SOPInstanceUID string
	Data           []byte
}

// Options configures retry behaviour for transient failures (connection
// refused, reset, or timed out).
type Options struct {
	MaxAttempts int           // default 3
	BaseBackoff time.Duration // default 1s
	Logger      *slog.Logger
}

// ErrBatchFailed wraps the first instance-level or association-level
// failure in a batch — the all-or-nothing contract means one failure
// fails the whole send.
var ErrBatchFailed = errors.New("sender: batch send failed")

// SendBatch establishes one association to dest and transmits every
// instance sequentially, returning nil only if all of them received a
// success status. Transient errors are retried per Options with
// exponential backoff; a DIMSE-level rejection is not retried.
func SendBatch(dest Destination, instances []Instance, opts Options) error {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if len(instances) == 0 {
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		err := sendOnce(dest, instances, logger)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isTransient(err) {
			return fmt.Errorf("%w: %v", ErrBatchFailed, err)
		}

		if attempt < opts.MaxAttempts {
			backoff := opts.BaseBackoff * time.Duration(1<<uint(attempt-1))
			jitter := time.Duration(rand.Int63n(int64(backoff) / 4))
			logger.Warn("transient send failure, retrying",
				"attempt", attempt, "max_attempts", opts.MaxAttempts, "error", err)
			time.Sleep(backoff + jitter)
		}
	}

	return fmt.Errorf("%w: exhausted %d attempts: %v", ErrBatchFailed, opts.MaxAttempts, lastErr)
}

func sendOnce(dest Destination, instances []Instance, logger *slog.Logger) error {
	address := fmt.Sprintf("%s:%d", dest.Host, dest.Port)

	assoc, err := client.Connect(address, client.Config{
		CallingAETitle: dest.CallingAETitle,
		CalledAETitle:  dest.CalledAETitle,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	defer assoc.Close()

	if echoResp, err := assoc.SendCEcho(0); err != nil {
		return fmt.Errorf("verification: %w", err)
	} else if (&dicomerrors.DIMSEError{Status: echoResp.Status}).IsFailure() {
		return fmt.Errorf("verification: peer returned status 0x%04X", echoResp.Status)
	}

	for i, inst := range instances {
		resp, err := assoc.SendCStore(&client.CStoreRequest{
			SOPClassUID:    inst.SOPClassUID,
			SOPInstanceUID: inst.SOPInstanceUID,
			Data:           inst.Data,
			MessageID:      uint16(i + 1),
		})
		if err != nil {
			return fmt.Errorf("instance %s: %w", inst.SOPInstanceUID, err)
		}
		if (&dicomerrors.DIMSEError{Status: resp.Status}).IsFailure() {
			return fmt.Errorf("instance %s: peer returned status 0x%04X", inst.SOPInstanceUID, resp.Status)
		}
	}

	return nil
}

// isTransient classifies connection refused/reset/timeout as retryable;
// everything else (including any DIMSE-level rejection, which never
// surfaces as a net.Error or syscall errno) is treated as send-fatal.
func isTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, net.ErrClosed)
}
