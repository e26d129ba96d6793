package passwd

type (
	// Multi hashes new passwords with its primary hasher and verifies any
	// verifier format known to this package.
	Multi struct {
		primary Hasher
		bcrypt  Hasher
		argon   Hasher
	}
)

func NewMulti(primary Hasher) *Multi {
	m := &Multi{primary: primary}
	switch h := primary.(type) {
	case *Bcrypt:
		m.bcrypt = h
	case *Argon2id:
		m.argon = h
	}
	if m.bcrypt == nil {
		// verify only, cost is read from the verifier itself
		m.bcrypt = &Bcrypt{cost: MinBcryptCost}
	}
	if m.argon == nil {
		m.argon = NewArgon2id(Argon2Params{})
	}
	return m
}

func (m *Multi) Hash(p PlainText) (string, error) {
	return m.primary.Hash(p)
}

func (m *Multi) Verify(p PlainText, verifier string) bool {
	switch {
	case isBcrypt(verifier):
		return m.bcrypt.Verify(p, verifier)
	case isArgon2id(verifier):
		return m.argon.Verify(p, verifier)
	}
	return false
}
