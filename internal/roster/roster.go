// Package roster loads the performer roster from a file or URL, falling back
// to the roster compiled into the binary.
package roster

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/saviobatista/airshow-tracker/internal/types"
	"gopkg.in/yaml.v3"
)

// InvalidNotice is shown when the configured roster could not be used
const InvalidNotice = "performers.json invalid (using embedded)"

const maxRosterBytes = 4 << 20

//go:embed default_performers.json
var defaultPerformers []byte

// Format is the encoding of a roster document
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// FormatFor picks the document format from the source extension
func FormatFor(source string) Format {
	p := source
	if u, err := url.Parse(source); err == nil && u.Path != "" {
		p = u.Path
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Default returns the embedded roster
func Default() []types.Performer {
	list, err := Parse(defaultPerformers, FormatJSON)
	if err != nil {
		panic(fmt.Sprintf("embedded roster is invalid: %v", err))
	}
	return list
}

// Load reads and validates the roster at source. On any failure it logs a
// warning and returns the embedded roster with InvalidNotice.
func Load(ctx context.Context, source string, client *http.Client, log zerolog.Logger) ([]types.Performer, string) {
	if source == "" {
		return Default(), ""
	}

	data, err := read(ctx, source, client)
	if err == nil {
		var list []types.Performer
		if list, err = Parse(data, FormatFor(source)); err == nil {
			log.Info().Str("source", source).Int("performers", len(list)).Msg("Loaded roster")
			return list, ""
		}
	}

	log.Warn().Err(err).Str("source", source).Msg("Roster invalid; using embedded roster")
	return Default(), InvalidNotice
}

// Parse decodes and validates a roster document
func Parse(data []byte, format Format) ([]types.Performer, error) {
	var list []types.Performer
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &list)
	default:
		err = json.Unmarshal(data, &list)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode roster: %w", err)
	}
	if list == nil {
		return nil, errors.New("roster is not an array")
	}
	if err := Validate(list); err != nil {
		return nil, err
	}
	return list, nil
}

// Validate checks required fields and id uniqueness
func Validate(list []types.Performer) error {
	v := validator.New()
	seen := make(map[string]bool, len(list))
	for i, p := range list {
		if err := v.Struct(p); err != nil {
			return fmt.Errorf("performer %d: %w", i, err)
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate performer id %q", p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

func read(ctx context.Context, source string, client *http.Client) ([]byte, error) {
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		data, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("failed to read roster file: %w", err)
		}
		return data, nil
	}

	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build roster request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-store")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch roster: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch roster: HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRosterBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read roster response: %w", err)
	}
	return data, nil
}
