package authentic

import "fmt"

// FieldMapping names the record fields the engine and the session layer read
// and write.  An empty name means the record has no such field.
type FieldMapping struct {
	Login            string
	Email            string
	CryptedPassword  string
	PasswordSalt     string
	PersistenceToken string

	// Brute-force and login statistics.
	FailedLoginCount  string
	LastFailedLoginAt string
	LoginCount        string
	LastLoginAt       string
	CurrentLoginAt    string
	LastLoginIP       string
	CurrentLoginIP    string
}

// DefaultFieldMapping returns the conventional column names.
func DefaultFieldMapping() FieldMapping {
	return FieldMapping{
		Login:             "login",
		Email:             "email",
		CryptedPassword:   "crypted_password",
		PasswordSalt:      "password_salt",
		PersistenceToken:  "persistence_token",
		FailedLoginCount:  "failed_login_count",
		LastFailedLoginAt: "last_failed_login_at",
		LoginCount:        "login_count",
		LastLoginAt:       "last_login_at",
		CurrentLoginAt:    "current_login_at",
		LastLoginIP:       "last_login_ip",
		CurrentLoginIP:    "current_login_ip",
	}
}

// Candidate column names, most preferred first.
var (
	loginCandidates            = []string{"login", "username"}
	emailCandidates            = []string{"email", "email_address"}
	cryptedPasswordCandidates  = []string{"crypted_password", "encrypted_password", "password_hash", "pw_hash"}
	passwordSaltCandidates     = []string{"password_salt", "pw_salt", "salt"}
	persistenceTokenCandidates = []string{"persistence_token"}
)

// ResolveFieldMapping guesses a FieldMapping from the columns a record type
// actually has.  Each field takes the first candidate name present in
// columns; statistics fields are mapped only when their conventional column
// exists.
//
// It returns [ErrNoCryptedPasswordField] when no digest column is found.
func ResolveFieldMapping(columns []string) (FieldMapping, error) {
	have := make(map[string]bool, len(columns))
	for _, c := range columns {
		have[c] = true
	}
	first := func(candidates []string) string {
		for _, c := range candidates {
			if have[c] {
				return c
			}
		}
		return ""
	}
	exact := func(name string) string {
		if have[name] {
			return name
		}
		return ""
	}

	def := DefaultFieldMapping()
	m := FieldMapping{
		Login:             first(loginCandidates),
		Email:             first(emailCandidates),
		CryptedPassword:   first(cryptedPasswordCandidates),
		PasswordSalt:      first(passwordSaltCandidates),
		PersistenceToken:  first(persistenceTokenCandidates),
		FailedLoginCount:  exact(def.FailedLoginCount),
		LastFailedLoginAt: exact(def.LastFailedLoginAt),
		LoginCount:        exact(def.LoginCount),
		LastLoginAt:       exact(def.LastLoginAt),
		CurrentLoginAt:    exact(def.CurrentLoginAt),
		LastLoginIP:       exact(def.LastLoginIP),
		CurrentLoginIP:    exact(def.CurrentLoginIP),
	}
	if m.CryptedPassword == "" {
		return m, fmt.Errorf("%w: none of %v in %v", ErrNoCryptedPasswordField, cryptedPasswordCandidates, columns)
	}
	return m, nil
}

// LoginField returns the field used to look records up: Login when mapped,
// otherwise Email.
func (m FieldMapping) LoginField() string {
	if m.Login != "" {
		return m.Login
	}
	return m.Email
}
