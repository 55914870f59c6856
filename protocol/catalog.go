package protocol

import (
	"fmt"
	"sort"
)

// Wire values for the tokens the server itself needs to name. Everything
// else is reachable through the catalog by symbol.
const (
	OpenParen  Token = 0x4000
	CloseParen Token = 0x4001

	// Powers
	AUS Token = 0x4100
	ENG Token = 0x4101
	FRA Token = 0x4102
	GER Token = 0x4103
	ITA Token = 0x4104
	RUS Token = 0x4105
	TUR Token = 0x4106

	// Unit types
	AMY Token = 0x4200
	FLT Token = 0x4201

	// Order verbs
	CTO Token = 0x4320
	CVY Token = 0x4321
	HLD Token = 0x4322
	MTO Token = 0x4323
	SUP Token = 0x4324
	VIA Token = 0x4325
	DSB Token = 0x4340
	RTO Token = 0x4341
	BLD Token = 0x4380
	REM Token = 0x4381
	WVE Token = 0x4382

	// Order notes
	MBV Token = 0x4400

	// Order results
	SUC Token = 0x4500

	// Seasons
	SPR Token = 0x4700
	SUM Token = 0x4701
	FAL Token = 0x4702
	AUT Token = 0x4703
	WIN Token = 0x4704

	// Commands
	CCD Token = 0x4800
	DRW Token = 0x4801
	FRM Token = 0x4802
	GOF Token = 0x4803
	HLO Token = 0x4804
	HST Token = 0x4805
	HUH Token = 0x4806
	IAM Token = 0x4807
	LOD Token = 0x4808
	MAP Token = 0x4809
	MDF Token = 0x480A
	MIS Token = 0x480B
	NME Token = 0x480C
	NOT Token = 0x480D
	NOW Token = 0x480E
	OBS Token = 0x480F
	OFF Token = 0x4810
	ORD Token = 0x4811
	OUT Token = 0x4812
	PRN Token = 0x4813
	REJ Token = 0x4814
	SCO Token = 0x4815
	SLO Token = 0x4816
	SND Token = 0x4817
	SUB Token = 0x4818
	SVE Token = 0x4819
	THX Token = 0x481A
	TME Token = 0x481B
	YES Token = 0x481C
	ADM Token = 0x481D
	SMR Token = 0x481E

	// Parameters
	ERR Token = 0x4902
	LVL Token = 0x4903
	MRT Token = 0x4904
	UNO Token = 0x490B
)

// keywordTokens is the complete symbol table, written out once. The
// catalog below is built from it at process start and never mutated.
var keywordTokens = map[string]Token{
	"(": OpenParen,
	")": CloseParen,

	// Powers (0x41)
	"AUS": AUS, "ENG": ENG, "FRA": FRA, "GER": GER,
	"ITA": ITA, "RUS": RUS, "TUR": TUR,

	// Unit types (0x42)
	"AMY": AMY, "FLT": FLT,

	// Order verbs (0x43): movement 0x2x, retreat 0x4x, adjustment 0x8x
	"CTO": CTO, "CVY": CVY, "HLD": HLD, "MTO": MTO, "SUP": SUP, "VIA": VIA,
	"DSB": DSB, "RTO": RTO,
	"BLD": BLD, "REM": REM, "WVE": WVE,

	// Order notes (0x44)
	"MBV": 0x4400, "BPR": 0x4401, "CST": 0x4402, "ESC": 0x4403,
	"FAR": 0x4404, "HSC": 0x4405, "NAS": 0x4406, "NMB": 0x4407,
	"NMR": 0x4408, "NRN": 0x4409, "NRS": 0x440A, "NSA": 0x440B,
	"NSC": 0x440C, "NSF": 0x440D, "NSP": 0x440E, "NST": 0x440F,
	"NSU": 0x4410, "NVR": 0x4411, "NYU": 0x4412, "YSC": 0x4413,

	// Order results (0x45)
	"SUC": SUC, "BNC": 0x4501, "CUT": 0x4502, "DSR": 0x4503,
	"FLD": 0x4504, "NSO": 0x4505, "RET": 0x4506,

	// Coasts (0x46)
	"NCS": 0x4600, "NEC": 0x4602, "ECS": 0x4604, "SEC": 0x4606,
	"SCS": 0x4608, "SWC": 0x460A, "WCS": 0x460C, "NWC": 0x460E,

	// Seasons (0x47)
	"SPR": SPR, "SUM": SUM, "FAL": FAL, "AUT": AUT, "WIN": WIN,

	// Commands (0x48)
	"CCD": CCD, "DRW": DRW, "FRM": FRM, "GOF": GOF, "HLO": HLO,
	"HST": HST, "HUH": HUH, "IAM": IAM, "LOD": LOD, "MAP": MAP,
	"MDF": MDF, "MIS": MIS, "NME": NME, "NOT": NOT, "NOW": NOW,
	"OBS": OBS, "OFF": OFF, "ORD": ORD, "OUT": OUT, "PRN": PRN,
	"REJ": REJ, "SCO": SCO, "SLO": SLO, "SND": SND, "SUB": SUB,
	"SVE": SVE, "THX": THX, "TME": TME, "YES": YES, "ADM": ADM,
	"SMR": SMR,

	// Parameters (0x49)
	"AOA": 0x4900, "BTL": 0x4901, "ERR": ERR, "LVL": LVL,
	"MRT": MRT, "MTL": 0x4905, "NPB": 0x4906, "NPR": 0x4907,
	"PDA": 0x4908, "PTL": 0x4909, "RTL": 0x490A, "UNO": UNO,
	"DSD": 0x490C,

	// Press vocabulary (0x4A). The server relays press opaquely but
	// registers the vocabulary so press bodies render and re-encode.
	"ALY": 0x4A00, "AND": 0x4A01, "BWX": 0x4A02, "DMZ": 0x4A03,
	"ELS": 0x4A04, "EXP": 0x4A05, "FWD": 0x4A06, "FCT": 0x4A07,
	"FOR": 0x4A08, "HOW": 0x4A09, "IDK": 0x4A0A, "IFF": 0x4A0B,
	"INS": 0x4A0C, "IOU": 0x4A0D, "OCC": 0x4A0E, "ORR": 0x4A0F,
	"PCE": 0x4A10, "POB": 0x4A11, "PPT": 0x4A12, "PRP": 0x4A13,
	"QRY": 0x4A14, "SCD": 0x4A15, "SRY": 0x4A16, "SUG": 0x4A17,
	"THK": 0x4A18, "THN": 0x4A19, "TRY": 0x4A1A, "UOM": 0x4A1B,
	"VSS": 0x4A1C, "WHT": 0x4A1D, "WHY": 0x4A1E, "XDO": 0x4A1F,
	"XOY": 0x4A20, "YDO": 0x4A21, "WRT": 0x4A22,

	// Provinces, standard map. Category byte encodes terrain kind.
	// Inland non-SC (0x50)
	"BOH": 0x5000, "BUR": 0x5001, "GAL": 0x5002, "RUH": 0x5003,
	"SIL": 0x5004, "TYR": 0x5005, "UKR": 0x5006,
	// Inland SC (0x51)
	"BUD": 0x5107, "MOS": 0x5108, "MUN": 0x5109, "PAR": 0x510A,
	"SER": 0x510B, "VIE": 0x510C, "WAR": 0x510D,
	// Sea non-SC (0x52)
	"ADR": 0x520E, "AEG": 0x520F, "BAL": 0x5210, "BAR": 0x5211,
	"BLA": 0x5212, "EAS": 0x5213, "ECH": 0x5214, "GOB": 0x5215,
	"GOL": 0x5216, "HEL": 0x5217, "ION": 0x5218, "IRI": 0x5219,
	"MAO": 0x521A, "NAO": 0x521B, "NTH": 0x521C, "NWG": 0x521D,
	"SKA": 0x521E, "TYS": 0x521F, "WES": 0x5220,
	// Coastal non-SC (0x54)
	"ALB": 0x5421, "APU": 0x5422, "ARM": 0x5423, "CLY": 0x5424,
	"FIN": 0x5425, "GAS": 0x5426, "LVN": 0x5427, "NAF": 0x5428,
	"PIC": 0x5429, "PIE": 0x542A, "PRU": 0x542B, "SYR": 0x542C,
	"TUS": 0x542D, "WAL": 0x542E, "YOR": 0x542F,
	// Coastal SC (0x55)
	"ANK": 0x5530, "BEL": 0x5531, "BER": 0x5532, "BRE": 0x5533,
	"CON": 0x5534, "DEN": 0x5535, "EDI": 0x5536, "GRE": 0x5537,
	"HOL": 0x5538, "KIE": 0x5539, "LON": 0x553A, "LVP": 0x553B,
	"MAR": 0x553C, "NAP": 0x553D, "NWY": 0x553E, "POR": 0x553F,
	"ROM": 0x5540, "RUM": 0x5541, "SEV": 0x5542, "SMY": 0x5543,
	"SWE": 0x5544, "TRI": 0x5545, "TUN": 0x5546, "VEN": 0x5547,
	// Bicoastal SC (0x57)
	"BUL": 0x5748, "SPA": 0x5749, "STP": 0x574A,
}

// Catalog is a bidirectional symbol/token table. It is append-only while
// being built and read-only once in use; the package default is built at
// process start and shared by every connection without locking.
type Catalog struct {
	byName  map[string]Token
	byToken map[Token]string
}

// NewCatalog returns an empty catalog ready for registration.
func NewCatalog() *Catalog {
	return &Catalog{
		byName:  make(map[string]Token),
		byToken: make(map[Token]string),
	}
}

// Register adds one symbol/token pair. Registering either side twice
// fails with ErrDuplicateToken.
func (c *Catalog) Register(name string, t Token) error {
	if prev, ok := c.byName[name]; ok {
		return fmt.Errorf("symbol %q already maps to 0x%04X: %w",
			name, uint16(prev), ErrDuplicateToken)
	}

	if prev, ok := c.byToken[t]; ok {
		return fmt.Errorf("token 0x%04X already maps to %q: %w",
			uint16(t), prev, ErrDuplicateToken)
	}

	c.byName[name] = t
	c.byToken[t] = name

	return nil
}

// Lookup returns the token for a registered symbol.
func (c *Catalog) Lookup(name string) (Token, bool) {
	t, ok := c.byName[name]
	return t, ok
}

// Name returns the registered symbol for a token.
func (c *Catalog) Name(t Token) (string, bool) {
	name, ok := c.byToken[t]
	return name, ok
}

// RegisteredProvinces lists every province in the catalog, ordered by
// wire value.
func RegisteredProvinces() []Province {
	provinces := make([]Province, 0, 80)

	for _, t := range catalog.byName {
		if t.IsProvince() {
			provinces = append(provinces, Province{Token: t})
		}
	}

	sort.Slice(provinces, func(i, j int) bool {
		return provinces[i].Token < provinces[j].Token
	})

	return provinces
}

var catalog = mustBuildCatalog()

func mustBuildCatalog() *Catalog {
	c := NewCatalog()

	for name, t := range keywordTokens {
		if err := c.Register(name, t); err != nil {
			// The table is a compile-time constant; a duplicate entry is a
			// programming error and cannot be recovered at runtime.
			panic(err)
		}
	}

	return c
}
