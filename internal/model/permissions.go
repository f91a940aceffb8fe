package model

// Role is one of the closed set of staff roles.
type Role string

const (
	RoleReception   Role = "reception"
	RoleKitchen     Role = "kitchen"
	RoleBar         Role = "bar"
	RoleAccountant  Role = "accountant"
	RoleStorekeeper Role = "storekeeper"
	RoleWaiter      Role = "waiter"
)

// Permission is a fine-grained capability key.
type Permission string

const (
	PermOrdersView         Permission = "orders.view"
	PermOrdersCreate       Permission = "orders.create"
	PermOrdersUpdate       Permission = "orders.update"
	PermOrdersCancel       Permission = "orders.cancel"
	PermTablesManage       Permission = "tables.manage"
	PermReservationsManage Permission = "reservations.manage"
	PermCustomersView      Permission = "customers.view"
	PermCustomersManage    Permission = "customers.manage"
	PermMenuView           Permission = "menu.view"
	PermMenuManage         Permission = "menu.manage"
	PermKitchenTickets     Permission = "kitchen.tickets"
	PermBarTickets         Permission = "bar.tickets"
	PermInventoryView      Permission = "inventory.view"
	PermInventoryManage    Permission = "inventory.manage"
	PermInventoryReceive   Permission = "inventory.receive"
	PermPaymentsProcess    Permission = "payments.process"
	PermPaymentsRefund     Permission = "payments.refund"
	PermReportsView        Permission = "reports.view"
	PermReportsFinancial   Permission = "reports.financial"
	PermExpensesManage     Permission = "expenses.manage"
	PermStaffView          Permission = "staff.view"
)

// BuiltinPermissions is the canonical vocabulary with human descriptions.
var BuiltinPermissions = []struct {
	Key         Permission
	Description string
}{
	{PermOrdersView, "View orders"},
	{PermOrdersCreate, "Open new orders"},
	{PermOrdersUpdate, "Modify open orders"},
	{PermOrdersCancel, "Cancel orders"},
	{PermTablesManage, "Seat and clear tables"},
	{PermReservationsManage, "Manage reservations"},
	{PermCustomersView, "View customer records"},
	{PermCustomersManage, "Edit customer records"},
	{PermMenuView, "View the menu"},
	{PermMenuManage, "Edit the menu"},
	{PermKitchenTickets, "Work kitchen tickets"},
	{PermBarTickets, "Work bar tickets"},
	{PermInventoryView, "View stock levels"},
	{PermInventoryManage, "Adjust stock"},
	{PermInventoryReceive, "Receive deliveries"},
	{PermPaymentsProcess, "Take payments"},
	{PermPaymentsRefund, "Issue refunds"},
	{PermReportsView, "View operational reports"},
	{PermReportsFinancial, "View financial reports"},
	{PermExpensesManage, "Record expenses"},
	{PermStaffView, "View the staff roster"},
}
