package nibble

import "errors"

var errShortBuffer = errors.New("nibble: source buffer too short")
