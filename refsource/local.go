package refsource

import (
	"os"

	"github.com/pkg/errors"
)

// Local opens a local FASTA file as a Source.
func Local(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "refsource: open %s", path)
	}
	return newFastaScanner(f), nil
}
