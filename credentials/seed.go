package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/andrebq/doorman/internal/logutil"
	"github.com/spf13/afero"
)

// LoadSeedFile imports the users listed in the JSON object stored at path.
// Keys are usernames and values are pre-computed verifiers:
//
//	{"user1": "$2a$10$..."}
//
// Users that already exist are left untouched. It returns how many users
// were imported.
func LoadSeedFile(ctx context.Context, fs afero.Fs, path string, importer Importer) (int, error) {
	buf, err := afero.ReadFile(fs, path)
	if err != nil {
		return 0, fmt.Errorf("unable to read seed file %v, cause %w", path, err)
	}
	var users map[string]string
	err = json.Unmarshal(buf, &users)
	if err != nil {
		return 0, fmt.Errorf("unable to parse seed file %v, cause %w", path, err)
	}
	names := make([]string, 0, len(users))
	for name, verifier := range users {
		err := ValidateImport(Record{Username: name, Verifier: verifier})
		if err != nil {
			return 0, fmt.Errorf("invalid entry for %q in seed file %v, cause %w", name, path, err)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	log := logutil.GetOrDefault(ctx)
	var imported int
	for _, name := range names {
		err := importer.Import(ctx, Record{Username: name, Verifier: users[name]})
		if errors.Is(err, ErrDuplicate) {
			log.Debug().Str("username", name).Msg("Seed user already exists")
			continue
		} else if err != nil {
			return imported, fmt.Errorf("unable to import %v from seed file, cause %w", name, err)
		}
		imported++
	}
	return imported, nil
}
