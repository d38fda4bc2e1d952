package symbol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/jward/scopegraph/internal/scope"
)

// Version is the envelope format written by Encode.
const Version = 1

var (
	// ErrVersion means the envelope was written by an unknown format version.
	ErrVersion = errors.New("unsupported envelope version")
	// ErrUnknownLanguage means a stored graph names a language the decoding
	// registry does not know.
	ErrUnknownLanguage = errors.New("unknown language")
)

// NamespaceLookup supplies the namespace table of a language by id.
type NamespaceLookup interface {
	NamespacesFor(language string) (scope.Namespaces, bool)
}

type envelope struct {
	Version   int                      `json:"version"`
	Strategy  string                   `json:"strategy"`
	Language  string                   `json:"language,omitempty"`
	Tags      []Tag                    `json:"tags,omitempty"`
	Graph     *scope.SerializableGraph `json:"graph,omitempty"`
	CrossFile []byte                   `json:"cross_file,omitempty"`
}

// Encode serializes l as gzip-compressed JSON. Equal values encode to
// identical bytes.
func Encode(l Locations) ([]byte, error) {
	env := envelope{Version: Version, Strategy: l.Strategy.String(), Language: l.Language}
	switch l.Strategy {
	case Empty:
	case Tags:
		env.Tags = l.tags
	case ScopeGraph:
		if l.graph == nil {
			return nil, fmt.Errorf("encode: scope graph variant without a graph")
		}
		sg := l.graph.ToSerializable()
		env.Graph = &sg
	case CrossFile:
		env.CrossFile = l.crossFile
	default:
		return nil, fmt.Errorf("encode: unknown strategy %s", l.Strategy)
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("encode: compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("encode: compress: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode restores a value written by Encode. Scope graphs get their
// language's namespace table from ns and are validated before they are
// returned.
func Decode(data []byte, ns NamespaceLookup) (Locations, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return Locations{}, fmt.Errorf("decode: %w", err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return Locations{}, fmt.Errorf("decode: decompress: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Locations{}, fmt.Errorf("decode: %w", err)
	}
	if env.Version != Version {
		return Locations{}, fmt.Errorf("decode: %w %d", ErrVersion, env.Version)
	}
	strategy, ok := ParseStrategy(env.Strategy)
	if !ok {
		return Locations{}, fmt.Errorf("decode: unknown strategy %q", env.Strategy)
	}

	switch strategy {
	case Tags:
		return NewTags(env.Language, env.Tags), nil
	case ScopeGraph:
		if env.Graph == nil {
			return Locations{}, fmt.Errorf("decode: %w: scope graph payload missing", scope.ErrMalformedGraph)
		}
		table, ok := ns.NamespacesFor(env.Graph.Language)
		if !ok {
			return Locations{}, fmt.Errorf("decode: %w %q", ErrUnknownLanguage, env.Graph.Language)
		}
		g, err := scope.FromSerializable(*env.Graph, table)
		if err != nil {
			return Locations{}, fmt.Errorf("decode: %w", err)
		}
		return NewScopeGraph(g), nil
	case CrossFile:
		return NewCrossFile(env.Language, env.CrossFile), nil
	}
	return NewEmpty(env.Language), nil
}
