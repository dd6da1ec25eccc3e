package proc

// startup.go implements the startup message a process's first thread receives
// on its PARENT channel before running any user code (spec.md §6), and its
// round-trip property (spec §8, "Startup round-trip").

import (
	"encoding/binary"
	"fmt"
)

const startupVersion = 1

// Startup is the decoded form of a process's startup message: its argument
// vector and environment variables.
type Startup struct {
	Args []string
	Env  map[string]string
}

// EncodeStartup serializes s into the binary layout spec.md §6 specifies:
// a fixed header, then u16 length prefixes for every arg and env key/value,
// then the packed bytes themselves, with no terminators.
func EncodeStartup(s Startup) ([]byte, error) {
	if len(s.Args) > 0xFFFF || len(s.Env) > 0xFFFF {
		return nil, fmt.Errorf("proc: startup message: too many args or env vars")
	}

	keys := make([]string, 0, len(s.Env))
	for k := range s.Env {
		keys = append(keys, k)
	}

	for _, a := range s.Args {
		if len(a) > 0xFFFF {
			return nil, fmt.Errorf("proc: startup message: arg too long")
		}
	}

	for _, k := range keys {
		if len(k) > 0xFFFF || len(s.Env[k]) > 0xFFFF {
			return nil, fmt.Errorf("proc: startup message: env entry too long")
		}
	}

	buf := make([]byte, 8)
	binary.LittleEndian.PutUint16(buf[0:2], startupVersion)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(len(s.Args)))
	binary.LittleEndian.PutUint16(buf[4:6], uint16(len(keys)))
	binary.LittleEndian.PutUint16(buf[6:8], 0) // flags, unused

	lengths := make([]byte, 0, 2*(len(s.Args)+2*len(keys)))

	for _, a := range s.Args {
		lengths = binary.LittleEndian.AppendUint16(lengths, uint16(len(a)))
	}

	for _, k := range keys {
		lengths = binary.LittleEndian.AppendUint16(lengths, uint16(len(k)))
		lengths = binary.LittleEndian.AppendUint16(lengths, uint16(len(s.Env[k])))
	}

	buf = append(buf, lengths...)

	for _, a := range s.Args {
		buf = append(buf, a...)
	}

	for _, k := range keys {
		buf = append(buf, k...)
		buf = append(buf, s.Env[k]...)
	}

	return buf, nil
}

// DecodeStartup parses a startup message previously produced by EncodeStartup.
func DecodeStartup(msg []byte) (Startup, error) {
	if len(msg) < 8 {
		return Startup{}, fmt.Errorf("proc: startup message: short header")
	}

	version := binary.LittleEndian.Uint16(msg[0:2])
	if version != startupVersion {
		return Startup{}, fmt.Errorf("proc: startup message: unsupported version %d", version)
	}

	argCount := int(binary.LittleEndian.Uint16(msg[2:4]))
	envCount := int(binary.LittleEndian.Uint16(msg[4:6]))

	pos := 8

	argLens := make([]int, argCount)
	for i := range argLens {
		if pos+2 > len(msg) {
			return Startup{}, fmt.Errorf("proc: startup message: truncated arg length table")
		}

		argLens[i] = int(binary.LittleEndian.Uint16(msg[pos : pos+2]))
		pos += 2
	}

	envKeyLens := make([]int, envCount)
	envValLens := make([]int, envCount)

	for i := 0; i < envCount; i++ {
		if pos+4 > len(msg) {
			return Startup{}, fmt.Errorf("proc: startup message: truncated env length table")
		}

		envKeyLens[i] = int(binary.LittleEndian.Uint16(msg[pos : pos+2]))
		envValLens[i] = int(binary.LittleEndian.Uint16(msg[pos+2 : pos+4]))
		pos += 4
	}

	args := make([]string, argCount)

	for i, n := range argLens {
		if pos+n > len(msg) {
			return Startup{}, fmt.Errorf("proc: startup message: truncated arg bytes")
		}

		args[i] = string(msg[pos : pos+n])
		pos += n
	}

	env := make(map[string]string, envCount)

	for i := 0; i < envCount; i++ {
		kn, vn := envKeyLens[i], envValLens[i]

		if pos+kn+vn > len(msg) {
			return Startup{}, fmt.Errorf("proc: startup message: truncated env bytes")
		}

		key := string(msg[pos : pos+kn])
		pos += kn
		val := string(msg[pos : pos+vn])
		pos += vn

		env[key] = val
	}

	return Startup{Args: args, Env: env}, nil
}
