package hrtools

// LeaveRequestOutput 是请假申请的结果。
type LeaveRequestOutput struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	LeaveType string `json:"leave_type"`
	Reason    string `json:"reason,omitempty"`
	Message   string `json:"message"`
}

// LeaveBalance 是某一类假期的剩余天数。
type LeaveBalance struct {
	Type          string `json:"type"`
	RemainingDays int    `json:"remaining_days"`
}

// LeaveBalanceOutput 汇总员工的假期余额。
type LeaveBalanceOutput struct {
	EmployeeID string         `json:"employee_id"`
	Balances   []LeaveBalance `json:"balances"`
}

// PayrollItem 是工资单的单个条目。
type PayrollItem struct {
	Code   string  `json:"code"`
	Label  string  `json:"label"`
	Amount float64 `json:"amount"`
}

// PayrollLookupOutput 是工资查询结果。
type PayrollLookupOutput struct {
	EmployeeID string        `json:"employee_id"`
	Period     string        `json:"period"`
	NetPay     float64       `json:"net_pay"`
	Items      []PayrollItem `json:"items"`
}
