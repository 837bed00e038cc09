package finance

// Response is the user-facing outcome of a compound operation.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// OK builds a successful response.
func OK(message string) Response {
	return Response{Success: true, Message: message}
}

// Fail builds a failed response.
func Fail(message string) Response {
	return Response{Success: false, Message: message}
}

// User-facing messages.
const (
	MsgProductNotFound      = "Product not found"
	MsgSaleAdded            = "Sale added successfully!"
	MsgSaleFailed           = "Failed to add sale"
	MsgExpenseAdded         = "Expense added successfully!"
	MsgExpenseFailed        = "Failed to add expense"
	MsgPurchaseAdded        = "Purchase added successfully!"
	MsgPurchaseExpenseAdded = "Purchase and Expense added successfully!"
	MsgPurchaseFailed       = "Failed to add purchase"
	MsgProductAdded         = "Product added successfully!"
	MsgProductFailed        = "Failed to add product"
	MsgProductDuplicate     = "Product already exists"
)
