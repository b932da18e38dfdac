package tamper

// doubleEncodeTamper percent-encodes twice, for applications that decode
// input once more after the framework has.
//
//	"../" → "..%252F"
type doubleEncodeTamper struct{}

func (doubleEncodeTamper) Name() string { return "doubleencode" }

func (doubleEncodeTamper) Apply(s string) string {
	return percentEncode(percentEncode(s))
}
