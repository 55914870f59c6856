package protocol

// This package implements the encoding and decoding of the DAIDE wire
// protocol that Parley uses to communicate with automated Diplomacy
// clients.
//
// DAIDE is a binary protocol. The layering, bottom up:
//
// - `Token` - the atomic wire unit. Always exactly 2 bytes. A token is
//             either a registered keyword (`HLO`, `AUS`, `(`, ...), a
//             signed integer in -8192..8191, or a single ASCII character.
// - Clauses - composite values parsed from runs of tokens, optionally
//             wrapped in parenthesis tokens: Power, Province, Turn, Unit,
//             Order, quoted text and bare numbers.
// - `Message` - a length-prefixed frame on the byte stream. Five kinds:
//             Initial (handshake), Representation (handshake ack),
//             Diplomacy (a token sequence carrying a command), Final
//             (orderly close) and Error (fatal protocol error).
// - Commands - one structure per DAIDE verb. Requests are parsed from a
//             Diplomacy payload, Responses and Notifications are rendered
//             into one.
//
// === Handshake
//
// The first message on a connection must be Initial: a 4 byte payload
// carrying a protocol version and the magic number 0xDA10. The server
// answers with an empty Representation message, after which both sides
// exchange Diplomacy messages until one of them sends Final.
//
// A byte-swapped magic number means the peer got its endianness wrong and
// is reported distinctly from a plain bad magic number.
//
// === Token encoding
//
// The first byte of a token pair selects its category:
//
//   - first byte < 0x40: a 14 bit signed integer (sign + 13 bit magnitude)
//   - 0x4B: an ASCII character, code point in the second byte
//   - anything else: a keyword, looked up in the immutable catalog built
//     at process start
//
// Keyword categories follow the DAIDE namespace layout: 0x40 brackets,
// 0x41 powers, 0x42 unit types, 0x43 order verbs, 0x44/0x45 order notes
// and results, 0x46 coasts, 0x47 seasons, 0x48 commands, 0x49 parameters,
// 0x4A press vocabulary, 0x50-0x57 provinces grouped by terrain.
//
// === Error recovery
//
// Framing and handshake failures are fatal to the connection and answered
// with an Error message carrying a one-byte reason code. Failures inside a
// Diplomacy payload (unknown verb, malformed clause) are answered with HUH
// and the connection stays open.
