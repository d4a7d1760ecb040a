package handler

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/utils"
)

// authorizeScope 主管和管理员可以查看任何人的排班，普通员工只能查看自己的排班
func authorizeScope(role domain.Role, sub int64, scope domain.Scope) error {
	if role.CanEditRoster() {
		return nil
	}
	if scope.All || scope.EmployeeID != sub {
		return errors.New("权限不足，只能查看自己的排班")
	}
	return nil
}

func (h *Handler) GetRoster(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	month, err := domain.ParseMonth(query.Get("month"))
	if err != nil {
		h.badRequest(w, r, err)
		return
	}
	scope, err := domain.ParseScope(query.Get("scope"))
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	role := r.Context().Value(RoleCtxKey).(domain.Role)
	sub := r.Context().Value(SubCtxKey).(int64)
	if err := authorizeScope(role, sub, scope); err != nil {
		h.errorResponse(w, r, err.Error())
		return
	}

	if entries, hit := h.getCachedRoster(scope, month); hit {
		h.successResponse(w, r, "获取排班成功", entries)
		return
	}

	version, cacheable := h.rosterCacheVersion(scope, month)

	entries, err := h.repository.GetRosterEntriesByMonth(scope, month)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}
	if cacheable {
		h.setCachedRoster(scope, month, version, entries)
	}

	h.successResponse(w, r, "获取排班成功", entries)
}

type rosterEntryRequest struct {
	EmployeeID int64  `json:"employeeId" validate:"required,gt=0"`
	Date       string `json:"date" validate:"required,datetime=2006-01-02"`
	ShiftID    int64  `json:"shiftId" validate:"required,gt=0"`
	IsOff      *bool  `json:"isOff" validate:"required"`
}

// parseRosterBatch 只做不依赖数据库的校验
func (h *Handler) parseRosterBatch(w http.ResponseWriter, r *http.Request) ([]domain.RosterEntry, error) {
	var req []rosterEntryRequest
	if err := h.readJSON(w, r, &req); err != nil {
		return nil, err
	}

	if len(req) == 0 {
		return nil, errors.New("排班记录不能为空")
	}
	if len(req) > h.config.Roster.MaxBatchSize {
		return nil, fmt.Errorf("一次最多提交 %d 条排班记录", h.config.Roster.MaxBatchSize)
	}

	entries := make([]domain.RosterEntry, len(req))
	for i, item := range req {
		if err := h.validate.Struct(item); err != nil {
			return nil, err
		}
		entries[i] = domain.RosterEntry{
			EmployeeID: item.EmployeeID,
			Date:       domain.Date(item.Date),
			ShiftID:    item.ShiftID,
			IsOff:      *item.IsOff,
		}
	}

	return entries, nil
}

func (h *Handler) SubmitRoster(w http.ResponseWriter, r *http.Request) {
	entries, err := h.parseRosterBatch(w, r)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	employeeIDs := make([]int64, 0, len(entries))
	for _, e := range entries {
		employeeIDs = append(employeeIDs, e.EmployeeID)
	}
	slices.Sort(employeeIDs)
	employeeIDs = slices.Compact(employeeIDs)

	employees, err := h.repository.GetEmployeesByIDs(employeeIDs)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	shiftList, err := h.repository.GetAllShifts()
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}
	shifts := make(map[int64]*domain.Shift, len(shiftList))
	for _, s := range shiftList {
		shifts[s.ID] = s
	}

	if err := utils.ValidateRosterBatch(entries, employees, shifts); err != nil {
		h.badRequest(w, r, err)
		return
	}

	if err := h.repository.UpsertRosterEntries(entries); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	keys := make([]domain.Key, len(entries))
	for i, e := range entries {
		keys[i] = e.Key()
	}
	h.invalidateRosterCache(keys)

	// 排班已经写入，通知失败不影响本次请求的结果
	for _, msg := range rosterUpdatedMails(entries, employees, shifts) {
		if err := h.publishMail(msg); err != nil {
			slog.Error("发送排班变更通知失败", "requestID", requestIDFrom(r), "to", msg.To, "error", err)
		}
	}

	h.successResponse(w, r, "提交排班成功", nil)
}

// rosterUpdatedMails 为每个受影响的员工生成一封邮件，按员工 ID 排序，邮件内的条目按日期排序
func rosterUpdatedMails(entries []domain.RosterEntry, employees map[int64]*domain.Employee, shifts map[int64]*domain.Shift) []domain.MailMessage {
	items := make(map[int64][]domain.RosterUpdatedMailItem)
	for _, e := range entries {
		shift := shifts[e.ShiftID]
		if shift == nil {
			continue
		}
		items[e.EmployeeID] = append(items[e.EmployeeID], domain.RosterUpdatedMailItem{
			Date:      e.Date,
			ShiftName: shift.Name,
			ShiftCode: shift.ShiftCode,
		})
	}

	ids := make([]int64, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	msgs := make([]domain.MailMessage, 0, len(ids))
	for _, id := range ids {
		employee := employees[id]
		if employee == nil || employee.Email == "" {
			continue
		}
		list := items[id]
		slices.SortFunc(list, func(a, b domain.RosterUpdatedMailItem) int {
			switch {
			case a.Date < b.Date:
				return -1
			case a.Date > b.Date:
				return 1
			default:
				return 0
			}
		})
		msgs = append(msgs, domain.MailMessage{
			Type: domain.MailTypeRosterUpdated,
			To:   employee.Email,
			Data: domain.RosterUpdatedMailData{
				FullName: employee.FullName,
				Items:    list,
			},
		})
	}

	return msgs
}

func (h *Handler) DeleteRosterEntry(w http.ResponseWriter, r *http.Request) {
	employeeID, err := strconv.ParseInt(chi.URLParam(r, "employeeId"), 10, 64)
	if err != nil || employeeID <= 0 {
		h.errorResponse(w, r, "员工ID无效")
		return
	}
	date := domain.Date(chi.URLParam(r, "date"))
	if err := date.Validate(); err != nil {
		h.badRequest(w, r, err)
		return
	}

	if err := h.repository.DeleteRosterEntry(employeeID, date); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			h.errorResponse(w, r, "记录不存在")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	h.invalidateRosterCache([]domain.Key{{EmployeeID: employeeID, Date: date}})

	h.successResponse(w, r, "删除排班成功", nil)
}
