package protocol_test

import (
	"bytes"
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/trieste/parley/protocol"
)

var _ = Describe("Messages", func() {
	Describe("WriteMessage() / ReadMessage()", func() {
		It("round trips an Initial message", func() {
			var buf bytes.Buffer

			Expect(protocol.WriteMessage(&buf, protocol.NewInitialMessage())).To(Succeed())

			// type, pad, length, version, magic
			Expect(buf.Bytes()).To(Equal([]byte{0x00, 0x00, 0x00, 0x04, 0x00, 0x01, 0xDA, 0x10}))

			m, err := protocol.ReadMessage(&buf)
			Expect(err).To(Succeed())
			Expect(m.Type).To(Equal(protocol.InitialMessage))
			Expect(m.CheckInitial()).To(Succeed())
		})

		It("round trips a Diplomacy message", func() {
			var buf bytes.Buffer

			out := protocol.NewDiplomacyMessage([]protocol.Token{protocol.MAP})
			Expect(protocol.WriteMessage(&buf, out)).To(Succeed())

			m, err := protocol.ReadMessage(&buf)
			Expect(err).To(Succeed())
			Expect(m).To(Equal(out))
		})

		It("fails on a truncated stream", func() {
			buf := bytes.NewBuffer([]byte{0x02, 0x00, 0x00, 0x04, 0x48})

			_, err := protocol.ReadMessage(buf)
			Expect(err).NotTo(Succeed())
		})
	})

	Describe("CheckInitial()", func() {
		It("detects a byte swapped magic number", func() {
			m := protocol.Message{Type: protocol.InitialMessage, Payload: []byte{0x00, 0x01, 0x10, 0xDA}}
			Expect(errors.Is(m.CheckInitial(), protocol.ErrWrongEndian)).To(BeTrue())
		})

		It("detects a wrong magic number", func() {
			m := protocol.Message{Type: protocol.InitialMessage, Payload: []byte{0x00, 0x01, 0xBE, 0xEF}}
			Expect(errors.Is(m.CheckInitial(), protocol.ErrWrongMagicNumber)).To(BeTrue())
		})

		It("detects an incompatible version", func() {
			m := protocol.Message{Type: protocol.InitialMessage, Payload: []byte{0x00, 0x63, 0xDA, 0x10}}
			Expect(errors.Is(m.CheckInitial(), protocol.ErrVersionIncompatibility)).To(BeTrue())
		})
	})

	Describe("Validate()", func() {
		It("requires empty payloads on Representation and Final", func() {
			m := protocol.Message{Type: protocol.RepresentationMessage, Payload: []byte{0x01}}
			Expect(errors.Is(m.Validate(), protocol.ErrPayloadNotEmpty)).To(BeTrue())

			m = protocol.Message{Type: protocol.FinalMessage, Payload: []byte{0x01}}
			Expect(errors.Is(m.Validate(), protocol.ErrPayloadNotEmpty)).To(BeTrue())
		})

		It("rejects unknown frame types", func() {
			m := protocol.Message{Type: protocol.MessageType(9)}
			Expect(errors.Is(m.Validate(), protocol.ErrUnknownMessageType)).To(BeTrue())
		})
	})

	Describe("FrameReader", func() {
		It("reassembles a frame split across two chunks", func() {
			var buf bytes.Buffer

			out := protocol.NewDiplomacyMessage([]protocol.Token{protocol.NOW})
			Expect(protocol.WriteMessage(&buf, out)).To(Succeed())

			raw := buf.Bytes()

			var framer protocol.FrameReader

			framer.Feed(raw[:3])
			_, ok, err := framer.Next()
			Expect(err).To(Succeed())
			Expect(ok).To(BeFalse())

			framer.Feed(raw[3:])
			m, ok, err := framer.Next()
			Expect(err).To(Succeed())
			Expect(ok).To(BeTrue())
			Expect(m).To(Equal(out))
		})

		It("yields back to back frames from one chunk", func() {
			var buf bytes.Buffer

			first := protocol.NewDiplomacyMessage([]protocol.Token{protocol.MAP})
			second := protocol.NewFinalMessage()

			Expect(protocol.WriteMessage(&buf, first)).To(Succeed())
			Expect(protocol.WriteMessage(&buf, second)).To(Succeed())

			var framer protocol.FrameReader

			framer.Feed(buf.Bytes())

			m, ok, err := framer.Next()
			Expect(err).To(Succeed())
			Expect(ok).To(BeTrue())
			Expect(m).To(Equal(first))

			m, ok, err = framer.Next()
			Expect(err).To(Succeed())
			Expect(ok).To(BeTrue())
			Expect(m.Type).To(Equal(protocol.FinalMessage))

			Expect(framer.Buffered()).To(BeZero())
		})

		It("consumes an invalid frame and reports its error", func() {
			var framer protocol.FrameReader

			framer.Feed([]byte{0x09, 0x00, 0x00, 0x00})

			_, _, err := framer.Next()
			Expect(errors.Is(err, protocol.ErrUnknownMessageType)).To(BeTrue())
			Expect(framer.Buffered()).To(BeZero())
		})
	})
})
