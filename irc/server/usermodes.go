package server

import (
	"reflect"
	"strings"
)

// UserModes holds the per-connection mode flags. The mode tag maps each
// field to its letter.
type UserModes struct {
	Invisible     bool `mode:"i"`
	Operator      bool `mode:"o"`
	Restricted    bool `mode:"r"`
	ServerNotices bool `mode:"s"`
	Wallops       bool `mode:"w"`
}

// userModeLetters lists every user mode, as advertised in RPL_MYINFO
const userModeLetters = "iorsw"

func userModeField(letter byte) (int, bool) {
	t := reflect.TypeOf(UserModes{})
	for i := 0; i < t.NumField(); i++ {
		if tag := t.Field(i).Tag.Get("mode"); len(tag) == 1 && tag[0] == letter {
			return i, true
		}
	}
	return 0, false
}

// Has reports whether the mode letter is set
func (m UserModes) Has(letter byte) bool {
	i, ok := userModeField(letter)
	return ok && reflect.ValueOf(m).Field(i).Bool()
}

// Set changes one mode letter. known is false for letters that are not user
// modes; changed is true when the value actually flipped.
func (m *UserModes) Set(letter byte, on bool) (changed, known bool) {
	i, ok := userModeField(letter)
	if !ok {
		return false, false
	}
	field := reflect.ValueOf(m).Elem().Field(i)
	if field.Bool() == on {
		return false, true
	}
	field.SetBool(on)
	return true, true
}

// String returns the mode string, e.g. "+iw"
func (m UserModes) String() string {
	var b strings.Builder
	b.WriteByte('+')

	v := reflect.ValueOf(m)
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if v.Field(i).Bool() {
			b.WriteString(t.Field(i).Tag.Get("mode"))
		}
	}
	return b.String()
}
