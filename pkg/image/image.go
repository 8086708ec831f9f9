// Package image persists compiled programs so a host can run them without
// the compiler. An image records the native table it was compiled against;
// loading it on a host with a different table is refused.
package image

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"strings"

	"minic/pkg/compiler"
	"minic/pkg/limits"
	"minic/pkg/native"
	"minic/pkg/opcode"
	"minic/pkg/value"

	"github.com/fxamacker/cbor/v2"
)

const (
	Magic   = "MINC"
	Version = 1
)

var (
	ErrBadMagic       = errors.New("image: not a minic image")
	ErrVersion        = errors.New("image: unsupported version")
	ErrNativeMismatch = errors.New("image: native table mismatch")
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

type Function struct {
	Name   string `cbor:"1,keyasint"`
	Start  int    `cbor:"2,keyasint"`
	Params int    `cbor:"3,keyasint"`
	Locals int    `cbor:"4,keyasint"`
	Return uint8  `cbor:"5,keyasint"`
}

// Image is the on-disk form of a compiled program.
type Image struct {
	Magic       string        `cbor:"1,keyasint"`
	Version     int           `cbor:"2,keyasint"`
	Fingerprint [32]byte      `cbor:"3,keyasint"`
	Natives     []string      `cbor:"4,keyasint,omitempty"`
	Limits      limits.Limits `cbor:"5,keyasint"`
	Code        []uint32      `cbor:"6,keyasint"`
	Funcs       []Function    `cbor:"7,keyasint,omitempty"`
	Strings     []string      `cbor:"8,keyasint,omitempty"`
	Globals     int           `cbor:"9,keyasint"`
	MainLocals  int           `cbor:"10,keyasint"`
	Main        int           `cbor:"11,keyasint"`
}

// Fingerprint identifies a native table by its ordered names.
func Fingerprint(names []string) [32]byte {
	return sha256.Sum256([]byte(strings.Join(names, "\x00")))
}

// New wraps bytecode compiled under lim.
func New(bc *compiler.Bytecode, lim limits.Limits) *Image {
	img := &Image{
		Magic:       Magic,
		Version:     Version,
		Fingerprint: Fingerprint(bc.Natives),
		Natives:     bc.Natives,
		Limits:      lim,
		Code:        bc.Instructions,
		Strings:     bc.Strings,
		Globals:     bc.Globals,
		MainLocals:  bc.MainLocals,
		Main:        bc.Main,
	}
	for _, fn := range bc.Funcs {
		img.Funcs = append(img.Funcs, Function{
			Name:   fn.Name,
			Start:  int(fn.Start),
			Params: fn.Params,
			Locals: fn.Locals,
			Return: uint8(fn.Return),
		})
	}
	return img
}

// Bytecode rebuilds the program for the VM.
func (img *Image) Bytecode() *compiler.Bytecode {
	bc := &compiler.Bytecode{
		Instructions: opcode.Instructions(img.Code),
		Strings:      img.Strings,
		Natives:      img.Natives,
		Globals:      img.Globals,
		MainLocals:   img.MainLocals,
		Main:         img.Main,
	}
	for _, fn := range img.Funcs {
		bc.Funcs = append(bc.Funcs, compiler.Function{
			Name:   fn.Name,
			Start:  opcode.Offset(fn.Start),
			Params: fn.Params,
			Locals: fn.Locals,
			Return: value.Type(fn.Return),
		})
	}
	return bc
}

// Check verifies that the host's native table is the one the image was
// compiled against.
func (img *Image) Check(natives *native.Registry) error {
	names := natives.Names()
	if Fingerprint(names) != img.Fingerprint {
		return fmt.Errorf("%w: image has %d natives, host has %d", ErrNativeMismatch, len(img.Natives), len(names))
	}
	return nil
}

// Marshal serializes an Image to canonical CBOR with the magic prefix.
func Marshal(img *Image) ([]byte, error) {
	body, err := cborEncMode.Marshal(img)
	if err != nil {
		return nil, fmt.Errorf("image: marshal: %w", err)
	}
	return append([]byte(Magic), body...), nil
}

// Unmarshal deserializes an Image and validates its header.
func Unmarshal(data []byte) (*Image, error) {
	if !bytes.HasPrefix(data, []byte(Magic)) {
		return nil, ErrBadMagic
	}

	var img Image
	if err := cbor.Unmarshal(data[len(Magic):], &img); err != nil {
		return nil, fmt.Errorf("image: unmarshal: %w", err)
	}
	if img.Magic != Magic {
		return nil, ErrBadMagic
	}
	if img.Version != Version {
		return nil, fmt.Errorf("%w %d", ErrVersion, img.Version)
	}
	if Fingerprint(img.Natives) != img.Fingerprint {
		return nil, fmt.Errorf("%w: fingerprint does not match recorded names", ErrNativeMismatch)
	}
	if err := img.Limits.Validate(); err != nil {
		return nil, fmt.Errorf("image: %w", err)
	}
	return &img, nil
}

func WriteFile(path string, img *Image) error {
	data, err := Marshal(img)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func ReadFile(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}
