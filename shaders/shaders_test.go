package shaders

import (
	"context"
	"encoding/binary"
	"testing"
	"testing/fstest"

	"github.com/cockroachdb/errors"
	. "github.com/onsi/gomega"
)

func fakeModule(words int) []byte {
	code := make([]byte, 4*words)
	binary.LittleEndian.PutUint32(code, spirvMagic)
	return code
}

func TestValidate(t *testing.T) {
	g := NewWithT(t)

	g.Expect(Validate(fakeModule(5))).To(Succeed())

	for _, bad := range [][]byte{
		nil,
		fakeModule(4),
		append(fakeModule(5), 0),
		make([]byte, 20),
	} {
		err := Validate(bad)
		g.Expect(errors.Is(err, ErrInvalidShader)).To(BeTrue(), "%v", err)
	}
}

func TestLoadAll(t *testing.T) {
	g := NewWithT(t)

	files := fstest.MapFS{}
	for _, name := range All {
		files[name+".spv"] = &fstest.MapFile{Data: fakeModule(8)}
	}

	codes, err := LoadAll(context.Background(), FSLoader{FS: files}, All...)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(codes).To(HaveLen(4))
	g.Expect(codes[LightCullingComp]).To(HaveLen(32))

	delete(files, DepthVert+".spv")
	_, err = LoadAll(context.Background(), FSLoader{FS: files}, All...)
	g.Expect(err).To(MatchError(ContainSubstring(DepthVert)))

	files[DepthVert+".spv"] = &fstest.MapFile{Data: []byte("#version 450")}
	_, err = LoadAll(context.Background(), FSLoader{FS: files}, All...)
	g.Expect(errors.Is(err, ErrInvalidShader)).To(BeTrue())
}
