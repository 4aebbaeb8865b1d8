package lang

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/chiraitori/HoYo-Code-Sender-Discord-Bot/internal/cache"
)

//go:embed locales/*.json
var localeFS embed.FS

// DefaultLanguage is used when a guild has no stored preference
const DefaultLanguage = "en"

// Guild language preferences change rarely; a short TTL keeps lookups
// off the database during a dispatch cycle. Writers must still call
// Invalidate on change.
const preferenceTTL = 5 * time.Minute

// PreferenceStore resolves a guild's stored language, "" when unset
type PreferenceStore interface {
	GetGuildLanguage(guildID string) (string, error)
}

// Manager resolves localized strings for guilds. Lookups that cannot be
// resolved return the key itself so callers never have to handle a
// missing translation.
type Manager struct {
	languages map[string]map[string]any
	prefs     PreferenceStore
	prefCache *cache.Cache[string, string]
}

// NewManager loads all embedded locale files
func NewManager(prefs PreferenceStore) (*Manager, error) {
	entries, err := fs.ReadDir(localeFS, "locales")
	if err != nil {
		return nil, fmt.Errorf("failed to read locales: %w", err)
	}

	languages := make(map[string]map[string]any, len(entries))
	for _, e := range entries {
		code := strings.TrimSuffix(e.Name(), ".json")

		data, err := localeFS.ReadFile(path.Join("locales", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read locale %s: %w", code, err)
		}

		var parsed map[string]any
		if err := json.Unmarshal(data, &parsed); err != nil {
			return nil, fmt.Errorf("failed to parse locale %s: %w", code, err)
		}
		languages[code] = parsed
	}

	if _, ok := languages[DefaultLanguage]; !ok {
		return nil, fmt.Errorf("default locale %q missing", DefaultLanguage)
	}

	return &Manager{
		languages: languages,
		prefs:     prefs,
		prefCache: cache.New[string, string](preferenceTTL),
	}, nil
}

// Available returns the loaded language codes, sorted
func (m *Manager) Available() []string {
	codes := make([]string, 0, len(m.languages))
	for code := range m.languages {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Supported reports whether a language code is loaded
func (m *Manager) Supported(code string) bool {
	_, ok := m.languages[code]
	return ok
}

// GetString resolves a dotted key (e.g. "commands.listcodes.newCodes")
// in the guild's language, substituting {param} placeholders. Falls
// back to English, then to the raw key.
func (m *Manager) GetString(key, guildID string, params map[string]string) string {
	selected := m.guildLanguage(guildID)

	text := lookup(m.languages[selected], key)
	if text == "" && selected != DefaultLanguage {
		text = lookup(m.languages[DefaultLanguage], key)
	}
	if text == "" {
		return key
	}

	for name, value := range params {
		text = strings.ReplaceAll(text, "{"+name+"}", value)
	}
	return text
}

// GetRewardString formats a raw reward description from the source for
// a guild. The source text is treated as opaque; an empty reward gets
// the localized placeholder.
func (m *Manager) GetRewardString(raw, guildID string) string {
	if strings.TrimSpace(raw) == "" {
		return m.GetString("commands.listcodes.noReward", guildID, nil)
	}
	return raw
}

// Invalidate drops the cached language preference for a guild. Called
// by the setlang write path and by tenant cleanup.
func (m *Manager) Invalidate(guildID string) {
	m.prefCache.Invalidate(guildID)
}

func (m *Manager) guildLanguage(guildID string) string {
	if guildID == "" {
		return DefaultLanguage
	}

	if code, ok := m.prefCache.Get(guildID); ok {
		return code
	}

	code, err := m.prefs.GetGuildLanguage(guildID)
	if err != nil {
		slog.Error("Failed to load guild language", "guildID", guildID, "error", err)
		return DefaultLanguage
	}
	if code == "" || !m.Supported(code) {
		code = DefaultLanguage
	}

	m.prefCache.Set(guildID, code)
	return code
}

// lookup walks a dotted key through nested locale maps
func lookup(langObj map[string]any, key string) string {
	current := any(langObj)
	for _, part := range strings.Split(key, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		current, ok = obj[part]
		if !ok {
			return ""
		}
	}

	text, _ := current.(string)
	return text
}
