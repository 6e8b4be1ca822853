package trace

import (
	"io"
	"os"
	"path/filepath"
)

const memoryMapSource = "/proc/self/maps"

// copyMemoryMap saves the process memory map next to the archive so that
// return addresses can be resolved later. Failure is only logged.
func (s *State) copyMemoryMap() {
	aux := filepath.Join(s.dir, "aux")

	if err := os.MkdirAll(aux, 0o755); err != nil {
		s.log.Warn().Err(err).Str("dir", aux).Msg("cannot create aux directory")
		return
	}

	src, err := os.Open(memoryMapSource)
	if err != nil {
		s.log.Warn().Err(err).Msg("cannot read memory map")
		return
	}
	defer src.Close()

	dst, err := os.Create(filepath.Join(aux, "maps"))
	if err != nil {
		s.log.Warn().Err(err).Msg("cannot create memory map copy")
		return
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		s.log.Warn().Err(err).Msg("cannot copy memory map")
	}
}
