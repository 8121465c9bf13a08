package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/jcalloway/framecraft/codec"
	"github.com/jcalloway/framecraft/frame"
	"github.com/jcalloway/framecraft/internal/config"
	ferrors "github.com/jcalloway/framecraft/internal/errors"
	"github.com/jcalloway/framecraft/internal/pcapio"
	"github.com/jcalloway/framecraft/internal/render"
	"github.com/jcalloway/framecraft/internal/ui"
	"github.com/jcalloway/framecraft/layers/knx"
	"github.com/jcalloway/framecraft/spec"
	"github.com/jcalloway/framecraft/transport"
)

// loadSpec resolves a specification by name: the embedded KNXnet/IP
// document, a literal path, or a name looked up in the configured
// search paths.
func loadSpec(name string) (*spec.Specification, error) {
	if name == "" {
		name = cfg.Spec.Default
	}
	if name == "" || name == config.EmbeddedSpecName {
		return knx.Spec()
	}
	path, err := cfg.Spec.Find(name)
	if err != nil {
		return nil, ferrors.WrapSpecError(err, name)
	}
	sp, err := spec.Load(path)
	if err != nil {
		return nil, ferrors.WrapSpecError(err, path)
	}
	return sp, nil
}

// parseSets turns repeated --set name=value flags into a frame
// override map. Values go through the same reader the wizard uses.
func parseSets(sets []string) (map[string]any, error) {
	if len(sets) == 0 {
		return nil, nil
	}
	overrides := make(map[string]any, len(sets))
	for _, s := range sets {
		name, value, ok := strings.Cut(s, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("--set %q: want name=value", s)
		}
		v, err := ui.ParseValue(value)
		if err != nil {
			return nil, fmt.Errorf("--set %s: %w", name, err)
		}
		if v == nil {
			return nil, fmt.Errorf("--set %s: empty value", name)
		}
		overrides[name] = v
	}
	return overrides, nil
}

// fieldJSON is one field in the JSON frame rendering.
type fieldJSON struct {
	Path string `json:"path"`
	Hex  string `json:"hex"`
	Note string `json:"note,omitempty"`
}

// frameJSON is the machine-readable frame rendering.
type frameJSON struct {
	Type   string      `json:"type,omitempty"`
	Length int         `json:"length"`
	Hex    string      `json:"hex"`
	Fields []fieldJSON `json:"fields"`
}

func frameToJSON(f *frame.Frame) frameJSON {
	data := f.Bytes()
	out := frameJSON{Length: len(data), Hex: codec.ToHex(data)}
	if body := f.Body(); body != nil {
		out.Type = body.Type()
	}
	for _, ref := range ui.Fields(f) {
		fj := fieldJSON{Path: ref.Path, Hex: codec.ToHex(ref.Field.Bytes())}
		fj.Note, _ = render.FieldNote(f.Spec(), ref.Field)
		out.Fields = append(out.Fields, fj)
	}
	return out
}

// printFrame writes a frame in the requested rendering.
func printFrame(f *frame.Frame, format string) error {
	switch format {
	case "hex":
		fmt.Fprintln(os.Stdout, codec.ToHex(f.Bytes()))
	case "tree":
		fmt.Fprint(os.Stdout, render.Tree(f))
	case "json":
		data, err := json.MarshalIndent(frameToJSON(f), "", "  ")
		if err != nil {
			return fmt.Errorf("marshal JSON: %w", err)
		}
		fmt.Fprintf(os.Stdout, "%s\n", data)
	default:
		return fmt.Errorf("invalid output format %q; must be hex, tree or json", format)
	}
	return nil
}

// transportKind folds the empty string to the UDP default.
func transportKind(kind string) transport.Kind {
	if kind == "" {
		return transport.KindUDP
	}
	return transport.Kind(kind)
}

// pcapSource builds the capture source endpoint from configuration.
func pcapSource() pcapio.Endpoint {
	ep := pcapio.Endpoint{Port: cfg.Pcap.SourcePort}
	if cfg.Pcap.SourceIP != "" {
		ep.IP = net.ParseIP(cfg.Pcap.SourceIP)
	}
	return ep
}

// pcapDestination derives the capture destination from a host:port
// target so exchange captures carry the real peer. Unparseable targets
// fall back to the synthesized defaults.
func pcapDestination(target string) pcapio.Endpoint {
	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return pcapio.Endpoint{}
	}
	ep := pcapio.Endpoint{IP: net.ParseIP(host)}
	if p, err := strconv.Atoi(portStr); err == nil {
		ep.Port = p
	}
	return ep
}

// writeFramePcap appends frames to a capture file, creating it with
// the configured source endpoint.
func writeFramePcap(path string, payloads ...[]byte) error {
	w, err := pcapio.Create(path, pcapSource(), pcapio.Endpoint{})
	if err != nil {
		return err
	}
	for _, p := range payloads {
		if err := w.WriteFrame(p); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}
