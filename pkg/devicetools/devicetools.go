// Package devicetools exposes device session operations as toolbox tools:
// device_status, select_seed, max_bundle_size and abort.
package devicetools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/germanamz/ledgerd/pkg/device"
	"github.com/germanamz/ledgerd/pkg/selector"
	"github.com/germanamz/ledgerd/pkg/tools/toolbox"
)

// Device is the engine surface the tools operate on. *engine.Engine
// satisfies it.
type Device interface {
	Present() bool
	Status() selector.Status
	SelectSeed(ctx context.Context, req selector.Request) (device.App, error)
	MaxBundleSize(ctx context.Context) (int, error)
	Abort()
}

// DeviceTools builds tools over a Device.
type DeviceTools struct {
	dev Device
}

// New creates DeviceTools for dev.
func New(dev Device) *DeviceTools {
	return &DeviceTools{dev: dev}
}

// Tools returns a ToolBox with the device tools.
func (d *DeviceTools) Tools() *toolbox.ToolBox {
	tb := toolbox.New()

	tb.Register(
		toolbox.Tool{
			Name:        "device_status",
			Description: "Report whether the signing device is attached and the state of the most recent seed selection.",
			InputSchema: json.RawMessage(`{"type":"object"}`),
			Handler:     d.handleStatus,
		},
		toolbox.Tool{
			Name: "select_seed",
			Description: "Wait for the signing device, open its signing application and activate the seed at " +
				"44'/4218'/{index}'/{page}'. Blocks until the seed is active, the selection is aborted, or it fails.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{` +
				`"index":{"type":"integer","minimum":0},` +
				`"page":{"type":"integer","minimum":0},` +
				`"security":{"type":"integer","minimum":0,"description":"Security level, 0 for the default"}` +
				`}}`),
			Handler: d.handleSelectSeed,
		},
		toolbox.Tool{
			Name:        "max_bundle_size",
			Description: "Return the largest transaction bundle the active signing application accepts.",
			InputSchema: json.RawMessage(`{"type":"object"}`),
			Handler:     d.handleMaxBundleSize,
		},
		toolbox.Tool{
			Name:        "abort",
			Description: "Abort the in-flight seed selection. Has no effect when nothing is waiting.",
			InputSchema: json.RawMessage(`{"type":"object"}`),
			Handler:     d.handleAbort,
		},
	)

	return tb
}

type statusOutput struct {
	Present  bool   `json:"present"`
	State    string `json:"state"`
	Path     string `json:"path,omitempty"`
	Security int    `json:"security,omitempty"`
	Attempts int    `json:"attempts"`
	Aborted  bool   `json:"aborted,omitempty"`
	Error    string `json:"error,omitempty"`
}

type selectInput struct {
	Index    uint32 `json:"index"`
	Page     uint32 `json:"page"`
	Security int    `json:"security"`
}

type selectOutput struct {
	Path          string `json:"path"`
	MaxBundleSize int    `json:"maxBundleSize"`
}

func (d *DeviceTools) handleStatus(_ context.Context, _ json.RawMessage) (string, error) {
	st := d.dev.Status()

	out := statusOutput{
		Present:  d.dev.Present(),
		State:    st.State.String(),
		Attempts: st.Attempts,
		Aborted:  st.Aborted,
	}
	if st.State != selector.Idle {
		out.Path = st.Request.Path().String()
		out.Security = st.Request.Security
	}
	if st.Err != nil {
		out.Error = st.Err.Error()
	}

	return encode(out)
}

func (d *DeviceTools) handleSelectSeed(ctx context.Context, input json.RawMessage) (string, error) {
	var in selectInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if in.Security < 0 {
		return "", fmt.Errorf("invalid input: security must not be negative")
	}

	req := selector.Request{Index: in.Index, Page: in.Page, Security: in.Security}
	app, err := d.dev.SelectSeed(ctx, req)
	if err != nil {
		return "", err
	}

	size, err := app.MaxBundleSize(ctx)
	if err != nil {
		return "", fmt.Errorf("seed selected but bundle size unavailable: %w", err)
	}

	return encode(selectOutput{Path: req.Path().String(), MaxBundleSize: size})
}

func (d *DeviceTools) handleMaxBundleSize(ctx context.Context, _ json.RawMessage) (string, error) {
	n, err := d.dev.MaxBundleSize(ctx)
	if err != nil {
		return "", err
	}

	return encode(map[string]int{"maxBundleSize": n})
}

func (d *DeviceTools) handleAbort(_ context.Context, _ json.RawMessage) (string, error) {
	d.dev.Abort()
	return "abort requested", nil
}

func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}
	return string(b), nil
}
