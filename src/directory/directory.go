// Package directory serves the static user list that clients fetch once at
// startup. It is read-only and external to the real-time core.
package directory

import (
	"encoding/json"
	"os"

	"github.com/relaychat/server/src/types"
	"github.com/rs/zerolog"
)

// Directory is an immutable user list loaded from a JSON file.
type Directory struct {
	users []types.User
}

// Load reads the user directory from path. A missing or malformed file is
// not fatal; the directory is simply empty.
func Load(path string, logger zerolog.Logger) *Directory {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("user directory unavailable")
		return &Directory{}
	}

	var users []types.User
	if err := json.Unmarshal(data, &users); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("user directory malformed")
		return &Directory{}
	}
	return &Directory{users: users}
}

// Users returns a copy of the directory entries.
func (d *Directory) Users() []types.User {
	out := make([]types.User, len(d.users))
	copy(out, d.users)
	return out
}
