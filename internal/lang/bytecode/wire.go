package bytecode

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ipe-systems/ipe/internal/domain/ipeerr"
)

// ToBytes serializes p into the little-endian wire format: a fixed header
// followed by the flat instruction stream, then the constant pool, then the
// field mapping. Round-tripping through ToBytes/FromBytes yields an equal
// CompiledPolicy (spec.md §8, property "bytecode round-trip"); the field
// mapping is written in map iteration order, so two encodings of the same
// policy need not be byte-identical.
func (p *CompiledPolicy) ToBytes() ([]byte, error) {
	var buf bytes.Buffer

	if _, err := buf.Write(p.Header.Magic[:]); err != nil {
		return nil, ipeerr.Wrap(ipeerr.KindSerialization, "write magic", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, p.Header.Version); err != nil {
		return nil, ipeerr.Wrap(ipeerr.KindSerialization, "write version", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, p.Header.PolicyID); err != nil {
		return nil, ipeerr.Wrap(ipeerr.KindSerialization, "write policy id", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(p.Code))); err != nil {
		return nil, ipeerr.Wrap(ipeerr.KindSerialization, "write code size", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(p.Constants))); err != nil {
		return nil, ipeerr.Wrap(ipeerr.KindSerialization, "write const size", err)
	}

	for _, instr := range p.Code {
		if err := writeInstruction(&buf, instr); err != nil {
			return nil, err
		}
	}
	for _, v := range p.Constants {
		if err := writeValue(&buf, v); err != nil {
			return nil, err
		}
	}

	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(p.FieldMapping))); err != nil {
		return nil, ipeerr.Wrap(ipeerr.KindSerialization, "write field mapping size", err)
	}
	for k, path := range p.FieldMapping {
		if err := binary.Write(&buf, binary.LittleEndian, k); err != nil {
			return nil, ipeerr.Wrap(ipeerr.KindSerialization, "write field mapping key", err)
		}
		if err := binary.Write(&buf, binary.LittleEndian, uint32(len(path))); err != nil {
			return nil, ipeerr.Wrap(ipeerr.KindSerialization, "write field mapping path length", err)
		}
		for _, segment := range path {
			if err := writeString(&buf, segment); err != nil {
				return nil, err
			}
		}
	}

	nameBytes := []byte(p.Name)
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(nameBytes))); err != nil {
		return nil, ipeerr.Wrap(ipeerr.KindSerialization, "write name length", err)
	}
	if _, err := buf.Write(nameBytes); err != nil {
		return nil, ipeerr.Wrap(ipeerr.KindSerialization, "write name", err)
	}

	return buf.Bytes(), nil
}

// FromBytes parses a wire-format blob produced by ToBytes. It validates the
// magic and version before trusting the rest of the stream.
func FromBytes(data []byte) (*CompiledPolicy, error) {
	r := bytes.NewReader(data)

	var magic [4]byte
	if _, err := r.Read(magic[:]); err != nil {
		return nil, ipeerr.Wrap(ipeerr.KindSerialization, "read magic", err)
	}
	if magic != Magic {
		return nil, ipeerr.New(ipeerr.KindSerialization, fmt.Sprintf("bad magic %x", magic))
	}

	var version, policyIDHi uint32
	_ = policyIDHi
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, ipeerr.Wrap(ipeerr.KindSerialization, "read version", err)
	}
	if version != WireVersion {
		return nil, ipeerr.New(ipeerr.KindSerialization, fmt.Sprintf("unsupported wire version %d", version))
	}

	var policyID uint64
	if err := binary.Read(r, binary.LittleEndian, &policyID); err != nil {
		return nil, ipeerr.Wrap(ipeerr.KindSerialization, "read policy id", err)
	}

	var codeSize, constSizeCount uint32
	if err := binary.Read(r, binary.LittleEndian, &codeSize); err != nil {
		return nil, ipeerr.Wrap(ipeerr.KindSerialization, "read code size", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &constSizeCount); err != nil {
		return nil, ipeerr.Wrap(ipeerr.KindSerialization, "read const size", err)
	}

	code := make([]Instruction, 0, codeSize)
	for i := uint32(0); i < codeSize; i++ {
		instr, err := readInstruction(r)
		if err != nil {
			return nil, err
		}
		code = append(code, instr)
	}

	constants := make([]Value, 0, constSizeCount)
	for i := uint32(0); i < constSizeCount; i++ {
		v, err := readValue(r)
		if err != nil {
			return nil, err
		}
		constants = append(constants, v)
	}

	var fieldMapCount uint32
	if err := binary.Read(r, binary.LittleEndian, &fieldMapCount); err != nil {
		return nil, ipeerr.Wrap(ipeerr.KindSerialization, "read field mapping size", err)
	}
	fieldMap := make(FieldMapping, fieldMapCount)
	for i := uint32(0); i < fieldMapCount; i++ {
		var key uint16
		if err := binary.Read(r, binary.LittleEndian, &key); err != nil {
			return nil, ipeerr.Wrap(ipeerr.KindSerialization, "read field mapping key", err)
		}
		var pathLen uint32
		if err := binary.Read(r, binary.LittleEndian, &pathLen); err != nil {
			return nil, ipeerr.Wrap(ipeerr.KindSerialization, "read field mapping path length", err)
		}
		path := make([]string, 0, pathLen)
		for j := uint32(0); j < pathLen; j++ {
			s, err := readString(r)
			if err != nil {
				return nil, err
			}
			path = append(path, s)
		}
		fieldMap[key] = path
	}

	var nameLen uint32
	if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
		return nil, ipeerr.Wrap(ipeerr.KindSerialization, "read name length", err)
	}
	nameBytes := make([]byte, nameLen)
	if _, err := r.Read(nameBytes); err != nil {
		return nil, ipeerr.Wrap(ipeerr.KindSerialization, "read name", err)
	}

	return &CompiledPolicy{
		Header: PolicyHeader{
			Magic:     Magic,
			Version:   version,
			PolicyID:  policyID,
			CodeSize:  codeSize,
			ConstSize: constSizeCount,
		},
		Code:         code,
		Constants:    constants,
		FieldMapping: fieldMap,
		Name:         string(nameBytes),
	}, nil
}

func writeInstruction(buf *bytes.Buffer, instr Instruction) error {
	if err := buf.WriteByte(byte(instr.Op)); err != nil {
		return ipeerr.Wrap(ipeerr.KindSerialization, "write opcode", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, instr.Field); err != nil {
		return ipeerr.Wrap(ipeerr.KindSerialization, "write field operand", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, instr.Const); err != nil {
		return ipeerr.Wrap(ipeerr.KindSerialization, "write const operand", err)
	}
	if err := buf.WriteByte(byte(instr.Comp)); err != nil {
		return ipeerr.Wrap(ipeerr.KindSerialization, "write comp operand", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, instr.Target); err != nil {
		return ipeerr.Wrap(ipeerr.KindSerialization, "write target operand", err)
	}
	return nil
}

func readInstruction(r *bytes.Reader) (Instruction, error) {
	var instr Instruction
	op, err := r.ReadByte()
	if err != nil {
		return instr, ipeerr.Wrap(ipeerr.KindSerialization, "read opcode", err)
	}
	instr.Op = Opcode(op)
	if err := binary.Read(r, binary.LittleEndian, &instr.Field); err != nil {
		return instr, ipeerr.Wrap(ipeerr.KindSerialization, "read field operand", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &instr.Const); err != nil {
		return instr, ipeerr.Wrap(ipeerr.KindSerialization, "read const operand", err)
	}
	comp, err := r.ReadByte()
	if err != nil {
		return instr, ipeerr.Wrap(ipeerr.KindSerialization, "read comp operand", err)
	}
	instr.Comp = CompOp(comp)
	if err := binary.Read(r, binary.LittleEndian, &instr.Target); err != nil {
		return instr, ipeerr.Wrap(ipeerr.KindSerialization, "read target operand", err)
	}
	return instr, nil
}

func writeValue(buf *bytes.Buffer, v Value) error {
	if err := buf.WriteByte(byte(v.Kind)); err != nil {
		return ipeerr.Wrap(ipeerr.KindSerialization, "write value tag", err)
	}
	switch v.Kind {
	case KindInt64:
		return binErr(binary.Write(buf, binary.LittleEndian, v.Int))
	case KindBool:
		b := byte(0)
		if v.Bool {
			b = 1
		}
		return binErr(buf.WriteByte(b))
	case KindString:
		return writeString(buf, v.Str)
	case KindFloat64:
		return binErr(binary.Write(buf, binary.LittleEndian, v.Flt))
	case KindArray:
		if err := binary.Write(buf, binary.LittleEndian, uint32(len(v.Arr))); err != nil {
			return ipeerr.Wrap(ipeerr.KindSerialization, "write array length", err)
		}
		for _, e := range v.Arr {
			if err := writeValue(buf, e); err != nil {
				return err
			}
		}
		return nil
	default:
		return ipeerr.New(ipeerr.KindSerialization, fmt.Sprintf("unknown value kind %d", v.Kind))
	}
}

func readValue(r *bytes.Reader) (Value, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return Value{}, ipeerr.Wrap(ipeerr.KindSerialization, "read value tag", err)
	}
	switch ValueKind(tag) {
	case KindInt64:
		var n int64
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return Value{}, ipeerr.Wrap(ipeerr.KindSerialization, "read int value", err)
		}
		return Int64(n), nil
	case KindBool:
		b, err := r.ReadByte()
		if err != nil {
			return Value{}, ipeerr.Wrap(ipeerr.KindSerialization, "read bool value", err)
		}
		return BoolVal(b != 0), nil
	case KindString:
		s, err := readString(r)
		if err != nil {
			return Value{}, err
		}
		return String(s), nil
	case KindFloat64:
		var f float64
		if err := binary.Read(r, binary.LittleEndian, &f); err != nil {
			return Value{}, ipeerr.Wrap(ipeerr.KindSerialization, "read float value", err)
		}
		return Float64(f), nil
	case KindArray:
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return Value{}, ipeerr.Wrap(ipeerr.KindSerialization, "read array length", err)
		}
		elems := make([]Value, 0, n)
		for i := uint32(0); i < n; i++ {
			e, err := readValue(r)
			if err != nil {
				return Value{}, err
			}
			elems = append(elems, e)
		}
		return Array(elems), nil
	default:
		return Value{}, ipeerr.New(ipeerr.KindSerialization, fmt.Sprintf("unknown value tag %d", tag))
	}
}

func writeString(buf *bytes.Buffer, s string) error {
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(s))); err != nil {
		return ipeerr.Wrap(ipeerr.KindSerialization, "write string length", err)
	}
	if _, err := buf.WriteString(s); err != nil {
		return ipeerr.Wrap(ipeerr.KindSerialization, "write string bytes", err)
	}
	return nil
}

func readString(r *bytes.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", ipeerr.Wrap(ipeerr.KindSerialization, "read string length", err)
	}
	b := make([]byte, n)
	if _, err := r.Read(b); err != nil {
		return "", ipeerr.Wrap(ipeerr.KindSerialization, "read string bytes", err)
	}
	return string(b), nil
}

func binErr(err error) error {
	if err != nil {
		return ipeerr.Wrap(ipeerr.KindSerialization, "write value payload", err)
	}
	return nil
}
