package cli

import (
	"time"

	"github.com/agencydesk/agencydesk/internal/storage"
	"github.com/shopspring/decimal"
)

type userView struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	FullName    string     `json:"full_name"`
	Email       string     `json:"email,omitempty"`
	IsAdmin     bool       `json:"is_admin"`
	IsActive    bool       `json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

func toUserView(u storage.User) userView {
	return userView{
		ID:          u.ID,
		Username:    u.Username,
		FullName:    u.FullName,
		Email:       u.Email,
		IsAdmin:     u.IsAdmin,
		IsActive:    u.IsActive,
		LastLoginAt: u.LastLoginAt,
	}
}

type employeeView struct {
	ID       int64           `json:"id"`
	FullName string          `json:"full_name"`
	Phone    string          `json:"phone,omitempty"`
	Email    string          `json:"email,omitempty"`
	Position string          `json:"position,omitempty"`
	Salary   decimal.Decimal `json:"salary"`
	JoinDate string          `json:"join_date"`
	Status   string          `json:"status"`
	Note     string          `json:"note,omitempty"`
}

func toEmployeeView(e storage.Employee) employeeView {
	return employeeView{
		ID:       e.ID,
		FullName: e.FullName,
		Phone:    e.Phone,
		Email:    e.Email,
		Position: e.Position,
		Salary:   e.Salary,
		JoinDate: e.JoinDate.Format(dateLayout),
		Status:   string(e.Status),
		Note:     e.Note,
	}
}

type customerView struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
	IDNumber string `json:"id_number,omitempty"`
	Address  string `json:"address,omitempty"`
	Note     string `json:"note,omitempty"`
}

func toCustomerView(c storage.Customer) customerView {
	return customerView{
		ID:       c.ID,
		FullName: c.FullName,
		Phone:    c.Phone,
		Email:    c.Email,
		IDNumber: c.IDNumber,
		Address:  c.Address,
		Note:     c.Note,
	}
}

type propertyView struct {
	ID           int64           `json:"id"`
	ListingCode  string          `json:"listing_code"`
	Type         string          `json:"type"`
	Title        string          `json:"title"`
	Description  string          `json:"description,omitempty"`
	Address      string          `json:"address,omitempty"`
	City         string          `json:"city,omitempty"`
	Area         decimal.Decimal `json:"area"`
	Price        decimal.Decimal `json:"price"`
	Rooms        *int            `json:"rooms,omitempty"`
	Bathrooms    *int            `json:"bathrooms,omitempty"`
	Floor        *int            `json:"floor,omitempty"`
	TotalFloors  *int            `json:"total_floors,omitempty"`
	BuiltYear    *int            `json:"built_year,omitempty"`
	Status       string          `json:"status"`
	EmployeeID   *int64          `json:"employee_id,omitempty"`
	EmployeeName string          `json:"employee_name,omitempty"`
	SourceURL    string          `json:"source_url,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func toPropertyView(p storage.Property) propertyView {
	return propertyView{
		ID:           p.ID,
		ListingCode:  p.ListingCode,
		Type:         p.Type,
		Title:        p.Title,
		Description:  p.Description,
		Address:      p.Address,
		City:         p.City,
		Area:         p.Area,
		Price:        p.Price,
		Rooms:        p.Rooms,
		Bathrooms:    p.Bathrooms,
		Floor:        p.Floor,
		TotalFloors:  p.TotalFloors,
		BuiltYear:    p.BuiltYear,
		Status:       string(p.Status),
		EmployeeID:   p.EmployeeID,
		EmployeeName: p.EmployeeName,
		SourceURL:    p.SourceURL,
		UpdatedAt:    p.UpdatedAt,
	}
}

type imageView struct {
	ID         int64  `json:"id"`
	PropertyID int64  `json:"property_id"`
	FilePath   string `json:"file_path"`
	IsMain     bool   `json:"is_main"`
}

func toImageViews(images []storage.PropertyImage) []imageView {
	out := make([]imageView, 0, len(images))
	for _, img := range images {
		out = append(out, imageView{
			ID:         img.ID,
			PropertyID: img.PropertyID,
			FilePath:   img.FilePath,
			IsMain:     img.IsMain,
		})
	}
	return out
}

type contractView struct {
	ID             int64           `json:"id"`
	ContractNumber string          `json:"contract_number"`
	Type           string          `json:"type"`
	Status         string          `json:"status"`
	PropertyID     int64           `json:"property_id"`
	PropertyTitle  string          `json:"property_title"`
	CustomerID     int64           `json:"customer_id"`
	CustomerName   string          `json:"customer_name"`
	EmployeeID     int64           `json:"employee_id"`
	EmployeeName   string          `json:"employee_name"`
	Amount         decimal.Decimal `json:"amount"`
	StartDate      string          `json:"start_date"`
	SignDate       string          `json:"sign_date"`
	EndDate        string          `json:"end_date,omitempty"`
	Note           string          `json:"note,omitempty"`
}

func toContractView(c storage.Contract) contractView {
	view := contractView{
		ID:             c.ID,
		ContractNumber: c.ContractNumber,
		Type:           string(c.Type),
		Status:         string(c.Status),
		PropertyID:     c.PropertyID,
		PropertyTitle:  c.PropertyTitle,
		CustomerID:     c.CustomerID,
		CustomerName:   c.CustomerName,
		EmployeeID:     c.EmployeeID,
		EmployeeName:   c.EmployeeName,
		Amount:         c.Amount,
		StartDate:      c.StartDate.Format(dateLayout),
		SignDate:       c.SignDate.Format(dateLayout),
		Note:           c.Note,
	}
	if c.EndDate != nil {
		view.EndDate = c.EndDate.Format(dateLayout)
	}
	return view
}

type paymentView struct {
	ID             int64           `json:"id"`
	ContractID     int64           `json:"contract_id"`
	ContractNumber string          `json:"contract_number"`
	Amount         decimal.Decimal `json:"amount"`
	PaymentDate    string          `json:"payment_date"`
	Method         string          `json:"method"`
	PaymentType    string          `json:"payment_type,omitempty"`
	PaymentNumber  string          `json:"payment_number,omitempty"`
	Note           string          `json:"note,omitempty"`
}

func toPaymentView(p storage.DownPayment) paymentView {
	return paymentView{
		ID:             p.ID,
		ContractID:     p.ContractID,
		ContractNumber: p.ContractNumber,
		Amount:         p.Amount,
		PaymentDate:    p.PaymentDate.Format(dateLayout),
		Method:         string(p.Method),
		PaymentType:    p.PaymentType,
		PaymentNumber:  p.PaymentNumber,
		Note:           p.Note,
	}
}

type expenseView struct {
	ID            int64           `json:"id"`
	Category      string          `json:"category"`
	Description   string          `json:"description,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	ExpenseDate   string          `json:"expense_date"`
	Status        string          `json:"status"`
	EmployeeID    *int64          `json:"employee_id,omitempty"`
	EmployeeName  string          `json:"employee_name,omitempty"`
	PropertyID    *int64          `json:"property_id,omitempty"`
	PropertyTitle string          `json:"property_title,omitempty"`
	Note          string          `json:"note,omitempty"`
}

func toExpenseView(x storage.Expense) expenseView {
	return expenseView{
		ID:            x.ID,
		Category:      x.Category,
		Description:   x.Description,
		Amount:        x.Amount,
		ExpenseDate:   x.ExpenseDate.Format(dateLayout),
		Status:        string(x.Status),
		EmployeeID:    x.EmployeeID,
		EmployeeName:  x.EmployeeName,
		PropertyID:    x.PropertyID,
		PropertyTitle: x.PropertyTitle,
		Note:          x.Note,
	}
}

type companyView struct {
	Name      string `json:"name"`
	Address   string `json:"address,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	Website   string `json:"website,omitempty"`
	TaxNumber string `json:"tax_number,omitempty"`
	LogoPath  string `json:"logo_path,omitempty"`
}

func toCompanyView(c storage.CompanyInfo) companyView {
	return companyView{
		Name:      c.Name,
		Address:   c.Address,
		Phone:     c.Phone,
		Email:     c.Email,
		Website:   c.Website,
		TaxNumber: c.TaxNumber,
		LogoPath:  c.LogoPath,
	}
}

func mapSlice[T, V any](items []T, fn func(T) V) []V {
	out := make([]V, 0, len(items))
	for _, item := range items {
		out = append(out, fn(item))
	}
	return out
}
