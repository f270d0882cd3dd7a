// api/schemas/account.go
package schemas

// -- Fixture --

// Credentials is the persisted fixture record. The JSON field names are part of the file format.
type Credentials struct {
	UserName string `json:"userName"`
	Password string `json:"password"`
}

// Complete reports whether both fields are present.
func (c Credentials) Complete() bool { return c.UserName != "" && c.Password != "" }

// -- Target API payloads --

// RegistrationKind classifies the response of the user registration endpoint.
type RegistrationKind string

const (
	RegistrationCreated       RegistrationKind = "created"
	RegistrationAlreadyExists RegistrationKind = "already_exists"
	RegistrationRejected      RegistrationKind = "rejected"
)

// RegistrationResult is the decoded answer of POST /Account/v1/User.
type RegistrationResult struct {
	Kind     RegistrationKind `json:"kind"`
	Status   int              `json:"status"`
	UserID   string           `json:"userID,omitempty"`
	UserName string           `json:"username,omitempty"`
	Message  string           `json:"message,omitempty"`
	Code     string           `json:"code,omitempty"`
}

// TokenResult is the decoded answer of POST /Account/v1/GenerateToken.
type TokenResult struct {
	Token   string `json:"token"`
	Expires string `json:"expires"`
	Status  string `json:"status"`
	Result  string `json:"result"`
}

// LoginResult is the decoded answer of POST /Account/v1/Login.
type LoginResult struct {
	UserID   string `json:"userId"`
	UserName string `json:"username"`
	Token    string `json:"token"`
	Expires  string `json:"expires"`
}

// Account is the decoded answer of GET /Account/v1/User/{id}.
type Account struct {
	UserID   string `json:"userId"`
	UserName string `json:"username"`
	Books    []Book `json:"books"`
}

// Book is one entry of the BookStore catalog.
type Book struct {
	ISBN        string `json:"isbn"`
	Title       string `json:"title"`
	SubTitle    string `json:"subTitle"`
	Author      string `json:"author"`
	PublishDate string `json:"publish_date"`
	Publisher   string `json:"publisher"`
	Pages       int    `json:"pages"`
	Description string `json:"description"`
	Website     string `json:"website"`
}

// BookList wraps GET /BookStore/v1/Books.
type BookList struct {
	Books []Book `json:"books"`
}

// PracticeForm is the data submitted through the automation practice form.
type PracticeForm struct {
	FirstName   string
	LastName    string
	Email       string
	Mobile      string
	Gender      string
	DateOfBirth string
	Subjects    []string
	Hobbies     []string
	PicturePath string
	Address     string
	State       string
	City        string
}
