package extract

import (
	"errors"
	"unicode/utf8"
)

func textPages(data []byte) ([]string, error) {
	if !utf8.Valid(data) {
		return nil, errors.New("text file is not valid UTF-8")
	}
	return []string{string(data)}, nil
}
