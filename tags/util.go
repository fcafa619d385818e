package tags

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"strings"
)

// func LoadTagFile {{{

// This returns the Tags listed within the given file.
// The file format is a UTF-8 text file, one tag per-line.
//
// Lines may also hold several comma separated tags, the same as a tag string given to Normalize().
func LoadTagFile(ffs fs.FS, file string) (Tags, error) {
	var newTags Tags

	f, err := ffs.Open(file)
	if err != nil {
		return newTags, err
	}

	defer f.Close()

	// Our new buffer for reading a single line at a time.
	buf := bufio.NewReader(f)

	for {
		line, err := buf.ReadString('\n')
		if err != nil && err != io.EOF {
			return newTags, fmt.Errorf("read(%s): %w", file, err)
		}

		for _, tag := range strings.Split(line, ",") {
			// Skip absurdly long tags (WTH dude?), Add() handles empty ones.
			if len(tag) > 100 {
				continue
			}

			newTags = newTags.Add(tag)
		}

		if err == io.EOF {
			break
		}
	}

	return newTags, nil
} // }}}
