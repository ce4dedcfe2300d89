// Package hrtools implements the human-resources tool catalog served to the
// dialog engine: leave, payroll, attendance and benefit lookups backed by
// fixed sample data.
package hrtools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "OpenMCP-Dialog/internal/errors"
	"OpenMCP-Dialog/internal/tooling"
	"OpenMCP-Dialog/pkg/logger"
)

// DefaultPayrollPeriod 是未指定期间时的工资查询期间。
const DefaultPayrollPeriod = "2025-08"

var leaveTypes = map[string]struct{}{
	"annual": {}, "sick": {}, "unpaid": {}, "maternity": {}, "other": {},
}

type handler func(ctx context.Context, args map[string]any) (any, error)

type entry struct {
	tool   tooling.Tool
	handle handler
}

// Catalog 是进程内的 HR 工具集合，实现 tooling.Backend。
type Catalog struct {
	entries []entry
	index   map[string]int
	log     *slog.Logger
}

// NewCatalog 创建包含全部 HR 工具的目录。
func NewCatalog() *Catalog {
	c := &Catalog{index: make(map[string]int), log: logger.Named("hrtools")}
	c.add("leave_request", "Leave request tool", leaveRequestSchema, c.leaveRequest)
	c.add("leave_status", "Leave status tool", employeeOnlySchema, c.leaveStatus)
	c.add("leave_balance", "Leave balance tool", employeeOnlySchema, c.leaveBalance)
	c.add("payroll_lookup", "Payroll lookup tool", payrollLookupSchema, c.payrollLookup)
	c.add("deduction_reason", "Deduction reason tool", employeePeriodSchema, c.deductionReason)
	c.add("attendance_check", "Attendance check tool", employeePeriodSchema, c.attendanceCheck)
	c.add("attendance_summary", "Attendance summary tool", employeePeriodSchema, c.attendanceSummary)
	c.add("benefit_summary", "Benefit summary tool", employeeOnlySchema, c.benefitSummary)
	return c
}

func (c *Catalog) add(name, description, schema string, h handler) {
	c.index[name] = len(c.entries)
	c.entries = append(c.entries, entry{
		tool:   tooling.NewTool(name, description, json.RawMessage(schema)),
		handle: h,
	})
}

// ListTools 实现 tooling.Backend。
func (c *Catalog) ListTools(context.Context) ([]tooling.Tool, error) {
	tools := make([]tooling.Tool, 0, len(c.entries))
	for _, e := range c.entries {
		tools = append(tools, e.tool)
	}
	return tools, nil
}

// Invoke 实现 tooling.Backend。返回值统一为 JSON 兼容结构，与远程传输的结果形态一致。
func (c *Catalog) Invoke(ctx context.Context, name string, args map[string]any) (any, error) {
	idx, ok := c.index[name]
	if !ok {
		return nil, xerrors.New(xerrors.CodeToolNotFound, fmt.Sprintf("未知工具: %s", name))
	}
	e := c.entries[idx]
	for _, field := range e.tool.Schema.RequiredFields() {
		if _, ok := stringArg(args, field); !ok {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("缺少必填参数 %s", field), xerrors.WithMetadata("tool", name))
		}
	}
	out, err := e.handle(ctx, args)
	if err != nil {
		return nil, err
	}
	return toJSONValue(out)
}

// Close 实现 tooling.Backend。
func (c *Catalog) Close() error { return nil }

func (c *Catalog) leaveRequest(_ context.Context, args map[string]any) (any, error) {
	employee, _ := stringArg(args, "employee_id")
	startRaw, _ := stringArg(args, "start")
	endRaw, _ := stringArg(args, "end")
	start, err := time.Parse(time.DateOnly, startRaw)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "start 必须是 YYYY-MM-DD 格式的日期")
	}
	end, err := time.Parse(time.DateOnly, endRaw)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "end 必须是 YYYY-MM-DD 格式的日期")
	}
	if end.Before(start) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "end 不能早于 start")
	}
	leaveType := "annual"
	if v, ok := stringArg(args, "leave_type"); ok {
		if _, known := leaveTypes[v]; !known {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("不支持的假期类型 %s", v))
		}
		leaveType = v
	}
	reason, _ := stringArg(args, "reason")

	c.log.Info("提交请假申请", "employee_id", employee, "start", startRaw, "end", endRaw, "leave_type", leaveType)
	return LeaveRequestOutput{
		RequestID: uuid.NewString(),
		Status:    "needs_approval",
		LeaveType: leaveType,
		Reason:    reason,
		Message:   fmt.Sprintf("Leave request %s → %s submitted for %s", startRaw, endRaw, employee),
	}, nil
}

func (c *Catalog) leaveStatus(_ context.Context, args map[string]any) (any, error) {
	employee, _ := stringArg(args, "employee_id")
	c.log.Info("查询请假状态", "employee_id", employee)
	return LeaveBalanceOutput{
		EmployeeID: employee,
		Balances: []LeaveBalance{
			{Type: "annual", RemainingDays: 10},
			{Type: "sick", RemainingDays: 5},
		},
	}, nil
}

func (c *Catalog) leaveBalance(_ context.Context, args map[string]any) (any, error) {
	employee, _ := stringArg(args, "employee_id")
	return LeaveBalanceOutput{
		EmployeeID: employee,
		Balances: []LeaveBalance{
			{Type: "annual", RemainingDays: 8},
			{Type: "sick", RemainingDays: 4},
			{Type: "maternity", RemainingDays: 90},
		},
	}, nil
}

func (c *Catalog) payrollLookup(_ context.Context, args map[string]any) (any, error) {
	employee, _ := stringArg(args, "employee_id")
	period, ok := stringArg(args, "period")
	if !ok || strings.EqualFold(period, "latest") {
		period = DefaultPayrollPeriod
	}
	items := []PayrollItem{
		{Code: "BASIC", Label: "Basic Salary", Amount: 20_000_000},
		{Code: "ALLOW", Label: "Allowance", Amount: 3_000_000},
		{Code: "DEDUCT", Label: "Deduction (Unpaid leave)", Amount: -1_000_000},
	}
	var net float64
	for _, item := range items {
		net += item.Amount
	}
	c.log.Info("查询工资", "employee_id", employee, "period", period, "net", net)
	return PayrollLookupOutput{EmployeeID: employee, Period: period, NetPay: net, Items: items}, nil
}

func (c *Catalog) deductionReason(_ context.Context, args map[string]any) (any, error) {
	employee, _ := stringArg(args, "employee_id")
	period, _ := stringArg(args, "period")
	return map[string]any{
		"employee_id": employee,
		"period":      period,
		"reason":      "Unpaid leave for 3 days in this period",
	}, nil
}

func (c *Catalog) attendanceCheck(_ context.Context, args map[string]any) (any, error) {
	employee, _ := stringArg(args, "employee_id")
	period, _ := stringArg(args, "period")
	return map[string]any{
		"employee_id": employee,
		"period":      period,
		"late_days": []map[string]any{
			{"date": "2025-08-18", "minutes_late": 120},
		},
	}, nil
}

func (c *Catalog) attendanceSummary(_ context.Context, args map[string]any) (any, error) {
	employee, _ := stringArg(args, "employee_id")
	period, _ := stringArg(args, "period")
	return map[string]any{
		"employee_id": employee,
		"period":      period,
		"summary":     map[string]int{"present": 18, "absent": 2, "late": 1},
	}, nil
}

func (c *Catalog) benefitSummary(_ context.Context, args map[string]any) (any, error) {
	employee, _ := stringArg(args, "employee_id")
	return map[string]any{
		"employee_id": employee,
		"benefits": []map[string]string{
			{"code": "HLTH", "label": "Health Insurance", "value": "Active"},
			{"code": "MEAL", "label": "Meal Allowance", "value": "Rp 500,000"},
		},
	}, nil
}

// stringArg 读取字符串参数；nil 与空串视为未提供。
func stringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", false
	}
	s, isString := v.(string)
	if !isString {
		s = fmt.Sprint(v)
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

func toJSONValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeToolFailure, err, "编码工具结果失败")
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeToolFailure, err, "编码工具结果失败")
	}
	return out, nil
}
