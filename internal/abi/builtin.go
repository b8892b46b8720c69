package abi

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/decentium/decentium-go/internal/codec"
)

var errShortBuffer = errors.New("unexpected end of payload")

type reader struct {
	buf []byte
	pos int
}

func (r *reader) remaining() int { return len(r.buf) - r.pos }

func (r *reader) read(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, errShortBuffer
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) byte() (byte, error) {
	b, err := r.read(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) uint16() (uint16, error) {
	b, err := r.read(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *reader) uint32() (uint32, error) {
	b, err := r.read(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) uint64() (uint64, error) {
	b, err := r.read(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *reader) varuint32() (uint32, error) {
	var v uint32
	for shift := uint(0); shift < 35; shift += 7 {
		b, err := r.byte()
		if err != nil {
			return 0, err
		}
		v |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, nil
		}
	}
	return 0, errors.New("varuint32 too long")
}

func (r *reader) bytes() ([]byte, error) {
	n, err := r.varuint32()
	if err != nil {
		return nil, err
	}
	return r.read(int(n))
}

type builtinFunc func(r *reader) (any, error)

var builtins = map[string]builtinFunc{
	"bool": func(r *reader) (any, error) {
		b, err := r.byte()
		if err != nil {
			return nil, err
		}
		if b > 1 {
			return nil, fmt.Errorf("invalid bool %d", b)
		}
		return b == 1, nil
	},
	"int8": func(r *reader) (any, error) {
		b, err := r.byte()
		return int64(int8(b)), err
	},
	"uint8": func(r *reader) (any, error) {
		b, err := r.byte()
		return uint64(b), err
	},
	"int16": func(r *reader) (any, error) {
		v, err := r.uint16()
		return int64(int16(v)), err
	},
	"uint16": func(r *reader) (any, error) {
		v, err := r.uint16()
		return uint64(v), err
	},
	"int32": func(r *reader) (any, error) {
		v, err := r.uint32()
		return int64(int32(v)), err
	},
	"uint32": func(r *reader) (any, error) {
		v, err := r.uint32()
		return uint64(v), err
	},
	"int64": func(r *reader) (any, error) {
		v, err := r.uint64()
		if err != nil {
			return nil, err
		}
		return int64Value(int64(v)), nil
	},
	"uint64": func(r *reader) (any, error) {
		v, err := r.uint64()
		if err != nil {
			return nil, err
		}
		return uint64Value(v), nil
	},
	"int128":  func(r *reader) (any, error) { return int128(r, true) },
	"uint128": func(r *reader) (any, error) { return int128(r, false) },
	"varuint32": func(r *reader) (any, error) {
		v, err := r.varuint32()
		return uint64(v), err
	},
	"varint32": func(r *reader) (any, error) {
		v, err := r.varuint32()
		// zigzag
		return int64(int32(v>>1) ^ -int32(v&1)), err
	},
	"float32": func(r *reader) (any, error) {
		v, err := r.uint32()
		if err != nil {
			return nil, err
		}
		return floatValue(float64(math.Float32frombits(v))), nil
	},
	"float64": func(r *reader) (any, error) {
		v, err := r.uint64()
		if err != nil {
			return nil, err
		}
		return floatValue(math.Float64frombits(v)), nil
	},
	"float128":    fixedHex(16),
	"checksum160": fixedHex(20),
	"checksum256": fixedHex(32),
	"checksum512": fixedHex(64),
	"time_point":  timePoint,
	"time_point_sec": func(r *reader) (any, error) {
		v, err := r.uint32()
		if err != nil {
			return nil, err
		}
		return time.Unix(int64(v), 0).UTC().Format("2006-01-02T15:04:05"), nil
	},
	"block_timestamp_type": func(r *reader) (any, error) {
		v, err := r.uint32()
		if err != nil {
			return nil, err
		}
		ms := int64(v)*500 + blockTimestampEpochMs
		return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000"), nil
	},
	"name": func(r *reader) (any, error) {
		v, err := r.uint64()
		if err != nil {
			return nil, err
		}
		return codec.NameToString(v), nil
	},
	"bytes": func(r *reader) (any, error) {
		b, err := r.bytes()
		if err != nil {
			return nil, err
		}
		return hex.EncodeToString(b), nil
	},
	"string": func(r *reader) (any, error) {
		b, err := r.bytes()
		if err != nil {
			return nil, err
		}
		return string(b), nil
	},
	"public_key": publicKey,
	"signature":  signature,
	"symbol": func(r *reader) (any, error) {
		v, err := r.uint64()
		if err != nil {
			return nil, err
		}
		precision, code := splitSymbol(v)
		return strconv.Itoa(int(precision)) + "," + code, nil
	},
	"symbol_code": func(r *reader) (any, error) {
		v, err := r.uint64()
		if err != nil {
			return nil, err
		}
		return symbolCode(v), nil
	},
	"asset": asset,
	"extended_asset": func(r *reader) (any, error) {
		quantity, err := asset(r)
		if err != nil {
			return nil, err
		}
		contract, err := r.uint64()
		if err != nil {
			return nil, err
		}
		return map[string]any{"quantity": quantity, "contract": codec.NameToString(contract)}, nil
	},
}

// blockTimestampEpochMs is 2000-01-01T00:00:00Z, the origin of block slots.
const blockTimestampEpochMs = 946684800000

// 64-bit integers outside the 32-bit range are rendered as strings, as the
// node does, so JSON consumers do not lose precision.
func int64Value(v int64) any {
	if v > math.MaxUint32 || v < -math.MaxUint32 {
		return strconv.FormatInt(v, 10)
	}
	return v
}

func uint64Value(v uint64) any {
	if v > math.MaxUint32 {
		return strconv.FormatUint(v, 10)
	}
	return v
}

func floatValue(f float64) any {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return f
}

func int128(r *reader, signed bool) (any, error) {
	b, err := r.read(16)
	if err != nil {
		return nil, err
	}
	be := make([]byte, 16)
	for i := range b {
		be[15-i] = b[i]
	}
	v := new(big.Int).SetBytes(be)
	if signed && be[0]&0x80 != 0 {
		v.Sub(v, new(big.Int).Lsh(big.NewInt(1), 128))
	}
	return v.String(), nil
}

func fixedHex(n int) builtinFunc {
	return func(r *reader) (any, error) {
		b, err := r.read(n)
		if err != nil {
			return nil, err
		}
		return hex.EncodeToString(b), nil
	}
}

func timePoint(r *reader) (any, error) {
	v, err := r.uint64()
	if err != nil {
		return nil, err
	}
	us := int64(v)
	return time.UnixMicro(us).UTC().Format("2006-01-02T15:04:05.000"), nil
}

func splitSymbol(v uint64) (uint8, string) {
	return uint8(v & 0xff), symbolCode(v >> 8)
}

func symbolCode(v uint64) string {
	var sb strings.Builder
	for v > 0 {
		sb.WriteByte(byte(v & 0xff))
		v >>= 8
	}
	return sb.String()
}

func asset(r *reader) (any, error) {
	amount, err := r.uint64()
	if err != nil {
		return nil, err
	}
	sym, err := r.uint64()
	if err != nil {
		return nil, err
	}
	precision, code := splitSymbol(sym)
	return formatAsset(int64(amount), precision, code), nil
}

func formatAsset(amount int64, precision uint8, code string) string {
	neg := amount < 0
	digits := new(big.Int).Abs(big.NewInt(amount)).String()
	if p := int(precision); p > 0 {
		if len(digits) <= p {
			digits = strings.Repeat("0", p-len(digits)+1) + digits
		}
		digits = digits[:len(digits)-p] + "." + digits[len(digits)-p:]
	}
	if neg {
		digits = "-" + digits
	}
	return digits + " " + code
}
