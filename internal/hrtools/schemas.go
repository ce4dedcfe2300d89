package hrtools

const employeeOnlySchema = `{
  "type": "object",
  "properties": {
    "employee_id": {"type": "string", "description": "Employee unique ID (e.g., E-001)"}
  },
  "required": ["employee_id"]
}`

const employeePeriodSchema = `{
  "type": "object",
  "properties": {
    "employee_id": {"type": "string", "description": "Employee unique ID (e.g., E-001)"},
    "period": {"type": "string", "description": "Period (YYYY-MM)"}
  },
  "required": ["employee_id", "period"]
}`

const leaveRequestSchema = `{
  "type": "object",
  "properties": {
    "employee_id": {"type": "string", "description": "Employee unique ID (e.g., E-001)"},
    "start": {"type": "string", "format": "date", "description": "Leave start date (YYYY-MM-DD)"},
    "end": {"type": "string", "format": "date", "description": "Leave end date (YYYY-MM-DD)"},
    "leave_type": {"type": "string", "enum": ["annual", "sick", "unpaid", "maternity", "other"], "default": "annual"},
    "reason": {"anyOf": [{"type": "string"}, {"type": "null"}], "default": null}
  },
  "required": ["employee_id", "start", "end"]
}`

const payrollLookupSchema = `{
  "type": "object",
  "properties": {
    "employee_id": {"type": "string", "description": "Employee unique ID (e.g., E-001)"},
    "period": {"anyOf": [{"type": "string"}, {"type": "null"}], "description": "Payroll period (YYYY-MM or 'latest')"}
  },
  "required": ["employee_id"]
}`
