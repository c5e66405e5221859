package buffercache

import "fmt"

// Open builds the Store selected by driver ("memory" or "sqlite").
func Open(driver, path string) (Store, error) {
	switch driver {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		if path == "" {
			return nil, fmt.Errorf("buffer cache: sqlite driver requires a path")
		}
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("buffer cache: unknown driver %q", driver)
	}
}
