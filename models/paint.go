package models

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/floor_backend/config"
	"bitbucket.org/mmdatafocus/floor_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Paint invariant: StockKg >= 0 and StockKg == InitialStockKg + signed sum of its movements.
type Paint struct {
	ID             string          `gorm:"primaryKey;size:36" json:"id"`
	Name           string          `gorm:"size:100;not null;uniqueIndex" json:"name"`
	StockKg        decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"stock_kg"`
	InitialStockKg decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"initial_stock_kg"`
	Version        int             `gorm:"not null;default:0" json:"-"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Paint) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = newId()
	}
	return nil
}

type MovementType string

const (
	MovementTypeAdd         MovementType = "add"
	MovementTypeRemove      MovementType = "remove"
	MovementTypeToMachine   MovementType = "to_machine"
	MovementTypeFromMachine MovementType = "from_machine"
)

// Sign is +1 for inbound, -1 for outbound and 0 for unknown types.
func (t MovementType) Sign() int {
	switch t {
	case MovementTypeAdd, MovementTypeFromMachine:
		return 1
	case MovementTypeRemove, MovementTypeToMachine:
		return -1
	}
	return 0
}

// Signed applies the movement direction to amount.
func (t MovementType) Signed(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(int64(t.Sign())))
}

// PaintMovement is the append-only journal of stock changes.
type PaintMovement struct {
	ID           string          `gorm:"primaryKey;size:36" json:"id"`
	PaintId      string          `gorm:"size:36;not null;index" json:"paint_id"`
	PaintName    string          `gorm:"size:100;not null" json:"paint_name"`
	MovementType MovementType    `gorm:"size:20;not null;index" json:"movement_type"`
	AmountKg     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount_kg"`
	StockAfterKg decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"stock_after_kg"`
	MachineId    *string         `gorm:"size:36;index" json:"machine_id"`
	MachineName  *string         `gorm:"size:100" json:"machine_name"`
	Note         *string         `gorm:"type:text" json:"note"`
	CreatedAt    time.Time       `gorm:"not null;index" json:"created_at"`
}

func (m *PaintMovement) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = newId()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = nowUTC()
	}
	return nil
}

type NewPaint struct {
	Name           string           `json:"name" binding:"required,max=100"`
	InitialStockKg *decimal.Decimal `json:"initial_stock_kg"`
}

// PaintTransactionInput is one stock movement request. MachineName is accepted from clients
// but ignored; the stored name is resolved from MachineId.
type PaintTransactionInput struct {
	PaintId      string          `json:"paint_id" binding:"required"`
	MovementType MovementType    `json:"movement_type" binding:"required"`
	AmountKg     decimal.Decimal `json:"amount_kg"`
	MachineId    *string         `json:"machine_id"`
	MachineName  *string         `json:"machine_name"`
	Note         *string         `json:"note"`
}

type PaintTransactionResult struct {
	Paint      *Paint          `json:"paint"`
	NewStock   decimal.Decimal `json:"new_stock"`
	MovementId string          `json:"movement_id"`
	Movement   *PaintMovement  `json:"movement"`
}

// InsufficientStockError names the shortfall of a rejected outbound movement.
type InsufficientStockError struct {
	PaintId     string
	PaintName   string
	RequestedKg decimal.Decimal
	AvailableKg decimal.Decimal
	ShortfallKg decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Yetersiz stok: %s kg mevcut, %s kg eksik", e.AvailableKg.String(), e.ShortfallKg.String())
}

func (e *InsufficientStockError) Unwrap() error {
	return &utils.AppError{
		Code:    utils.CodeInsufficientStock,
		Message: e.Error(),
		Details: map[string]any{
			"paint_id":     e.PaintId,
			"requested_kg": e.RequestedKg,
			"available_kg": e.AvailableKg,
			"shortfall_kg": e.ShortfallKg,
		},
	}
}

const (
	paintCASAttempts  = 3
	kgScale           = 4
	movementPageLimit = 50
	movementMaxLimit  = 500
)

// DefaultPaints is the palette seeded by InitPaints, with opening stock in kg.
var DefaultPaints = []struct {
	Name    string
	StockKg int64
}{
	{"Siyah", 0},
	{"Beyaz", 50},
	{"Kırmızı", 0},
	{"Mavi", 0},
	{"Yeşil", 0},
	{"Sarı", 0},
	{"Turuncu", 0},
	{"Mor", 0},
	{"Pembe", 0},
	{"Kahverengi", 0},
	{"Gri", 0},
	{"Turkuaz", 0},
}

// InitPaints seeds the default palette when no paint exists. Returns the number created.
func InitPaints(ctx context.Context) (int, error) {
	db := config.GetDB()
	created := 0
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Paint{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		paints := make([]Paint, 0, len(DefaultPaints))
		for _, p := range DefaultPaints {
			stock := decimal.NewFromInt(p.StockKg)
			paints = append(paints, Paint{Name: p.Name, StockKg: stock, InitialStockKg: stock})
		}
		if err := tx.Create(&paints).Error; err != nil {
			return err
		}
		created = len(paints)
		return nil
	})
	return created, err
}

func CreatePaint(ctx context.Context, input *NewPaint) (*Paint, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, utils.Validation("paint name is required")
	}
	initial := decimal.Zero
	if input.InitialStockKg != nil {
		initial = input.InitialStockKg.Round(kgScale)
	}
	if initial.IsNegative() {
		return nil, utils.Validation("initial_stock_kg must not be negative")
	}

	paint := Paint{Name: name, StockKg: initial, InitialStockKg: initial}
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := utils.ValidateUnique[Paint](tx, "name", name, ""); err != nil {
			if errors.Is(err, utils.ErrConflict) {
				return utils.Conflict("paint %q already exists", name)
			}
			return err
		}
		return tx.Create(&paint).Error
	})
	if err != nil {
		if utils.IsDuplicateKey(err) {
			return nil, utils.Conflict("paint %q already exists", name)
		}
		return nil, err
	}
	return &paint, nil
}

func GetPaint(ctx context.Context, id string) (*Paint, error) {
	return GetResource[Paint](ctx, id, "paint")
}

func ListPaints(ctx context.Context) ([]*Paint, error) {
	return utils.FetchAllModels[Paint](ctx, "name, id")
}

// DeletePaint removes the paint together with its movement journal.
func DeletePaint(ctx context.Context, id string) (*Paint, error) {
	var paint *Paint
	err := withKeyLock(ctx, utils.PaintLockKey(id), func(tx *gorm.DB) error {
		var err error
		paint, err = fetchForUpdate[Paint](tx, id, "paint")
		if err != nil {
			return err
		}
		if err := tx.Where("paint_id = ?", id).Delete(&PaintMovement{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&Paint{}).Error
	})
	if err != nil {
		return nil, err
	}
	return paint, nil
}

func (input *PaintTransactionInput) validate() error {
	if strings.TrimSpace(input.PaintId) == "" {
		return utils.Validation("paint_id is required")
	}
	if input.MovementType.Sign() == 0 {
		return utils.Validation("invalid movement_type %q; expected add, remove, to_machine or from_machine", input.MovementType)
	}
	if !input.AmountKg.Round(kgScale).IsPositive() {
		return utils.Validation("amount_kg must be a positive number")
	}
	return nil
}

// TransactPaint applies one stock movement and appends it to the journal.
//
// Writers on the same paint are serialized by the paint key lock, and the stock update itself is a
// compare-and-swap on Paint.Version, so the sufficiency check and the write cannot be split by another
// movement.
func TransactPaint(ctx context.Context, input *PaintTransactionInput) (*PaintTransactionResult, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	amount := input.AmountKg.Round(kgScale)

	var result PaintTransactionResult
	err := withKeyLock(ctx, utils.PaintLockKey(input.PaintId), func(tx *gorm.DB) error {
		var machineId, machineName *string
		if input.MachineId != nil && strings.TrimSpace(*input.MachineId) != "" {
			m, err := utils.FetchModelTx[Machine](tx, strings.TrimSpace(*input.MachineId))
			if err == utils.ErrorRecordNotFound {
				return utils.NotFound("machine not found")
			}
			if err != nil {
				return err
			}
			machineId, machineName = &m.ID, &m.Name
		}

		var (
			paint    *Paint
			newStock decimal.Decimal
			swapped  bool
		)
		for attempt := 0; attempt < paintCASAttempts && !swapped; attempt++ {
			var err error
			paint, err = fetchForUpdate[Paint](tx, input.PaintId, "paint")
			if err != nil {
				return err
			}
			newStock = paint.StockKg.Add(input.MovementType.Signed(amount))
			if newStock.IsNegative() {
				return &InsufficientStockError{
					PaintId:     paint.ID,
					PaintName:   paint.Name,
					RequestedKg: amount,
					AvailableKg: paint.StockKg,
					ShortfallKg: newStock.Neg(),
				}
			}
			res := tx.Model(&Paint{}).
				Where("id = ? AND version = ?", paint.ID, paint.Version).
				Updates(map[string]interface{}{
					"stock_kg": newStock,
					"version":  gorm.Expr("version + ?", 1),
				})
			if res.Error != nil {
				return res.Error
			}
			swapped = res.RowsAffected == 1
		}
		if !swapped {
			return utils.Conflict("paint %s changed concurrently; retry", paint.Name)
		}

		movement := PaintMovement{
			PaintId:      paint.ID,
			PaintName:    paint.Name,
			MovementType: input.MovementType,
			AmountKg:     amount,
			StockAfterKg: newStock,
			MachineId:    machineId,
			MachineName:  machineName,
			Note:         input.Note,
		}
		if err := tx.Create(&movement).Error; err != nil {
			return err
		}
		updated, err := utils.FetchModelTx[Paint](tx, paint.ID)
		if err != nil {
			return err
		}
		result = PaintTransactionResult{
			Paint:      updated,
			NewStock:   newStock,
			MovementId: movement.ID,
			Movement:   &movement,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ListPaintMovements returns the most recent movements first.
func ListPaintMovements(ctx context.Context, paintId *string, limit int) ([]*PaintMovement, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	if paintId != nil && *paintId != "" {
		dbCtx = dbCtx.Where("paint_id = ?", *paintId)
	}
	var results []*PaintMovement
	err := dbCtx.Order("created_at DESC, id DESC").
		Limit(utils.ClampLimit(limit, movementPageLimit, movementMaxLimit)).
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// LowStockPaints returns paints with stock strictly below threshold, lowest first.
func LowStockPaints(ctx context.Context, threshold decimal.Decimal) ([]*Paint, error) {
	if threshold.IsNegative() {
		return nil, utils.Validation("threshold must not be negative")
	}
	paints, err := ListPaints(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]*Paint, 0)
	for _, p := range paints {
		if p.StockKg.LessThan(threshold) {
			results = append(results, p)
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].StockKg.LessThan(results[j].StockKg)
	})
	return results, nil
}

type PaintConsumption struct {
	Period             string                     `json:"period"`
	Days               int                        `json:"days"`
	Since              time.Time                  `json:"since"`
	PaintConsumption   map[string]decimal.Decimal `json:"paint_consumption"`
	MachineConsumption map[string]decimal.Decimal `json:"machine_consumption"`
	DailyConsumption   map[string]decimal.Decimal `json:"daily_consumption"`
	TotalConsumed      decimal.Decimal            `json:"total_consumed"`
}

// PeriodDays maps weekly/monthly or a positive day count to a number of days.
func PeriodDays(period string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(period)) {
	case "", "weekly":
		return 7, nil
	case "monthly":
		return 30, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(period))
	if err != nil || n <= 0 || n > 3660 {
		return 0, utils.Validation("invalid period %q; use weekly, monthly or a number of days", period)
	}
	return n, nil
}

// PaintConsumptionAnalytics aggregates outbound movements (remove, to_machine) since the cutoff.
func PaintConsumptionAnalytics(ctx context.Context, period string) (*PaintConsumption, error) {
	days, err := PeriodDays(period)
	if err != nil {
		return nil, err
	}
	if period == "" {
		period = "weekly"
	}
	since := nowUTC().AddDate(0, 0, -days)

	db := config.GetDB()
	var movements []*PaintMovement
	err = db.WithContext(ctx).
		Where("movement_type IN ? AND created_at >= ?", []MovementType{MovementTypeRemove, MovementTypeToMachine}, since).
		Order("created_at ASC").
		Find(&movements).Error
	if err != nil {
		return nil, err
	}

	out := &PaintConsumption{
		Period:             period,
		Days:               days,
		Since:              since,
		PaintConsumption:   map[string]decimal.Decimal{},
		MachineConsumption: map[string]decimal.Decimal{},
		DailyConsumption:   map[string]decimal.Decimal{},
		TotalConsumed:      decimal.Zero,
	}
	for _, m := range movements {
		out.PaintConsumption[m.PaintName] = out.PaintConsumption[m.PaintName].Add(m.AmountKg)
		if m.MachineName != nil && *m.MachineName != "" {
			out.MachineConsumption[*m.MachineName] = out.MachineConsumption[*m.MachineName].Add(m.AmountKg)
		}
		day := utils.DateOnly(m.CreatedAt)
		out.DailyConsumption[day] = out.DailyConsumption[day].Add(m.AmountKg)
		out.TotalConsumed = out.TotalConsumed.Add(m.AmountKg)
	}
	return out, nil
}

type PaintReplay struct {
	PaintId        string          `json:"paint_id"`
	PaintName      string          `json:"paint_name"`
	InitialStockKg decimal.Decimal `json:"initial_stock_kg"`
	MovementCount  int             `json:"movement_count"`
	ReplayedKg     decimal.Decimal `json:"replayed_kg"`
	StockKg        decimal.Decimal `json:"stock_kg"`
	Consistent     bool            `json:"consistent"`
}

// ReplayPaintStock recomputes stock from the journal and compares it with the stored value.
func ReplayPaintStock(ctx context.Context, id string) (*PaintReplay, error) {
	paint, err := GetPaint(ctx, id)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	var movements []*PaintMovement
	if err := db.WithContext(ctx).Where("paint_id = ?", id).Find(&movements).Error; err != nil {
		return nil, err
	}
	return replay(paint, movements), nil
}

func replay(paint *Paint, movements []*PaintMovement) *PaintReplay {
	total := paint.InitialStockKg
	for _, m := range movements {
		total = total.Add(m.MovementType.Signed(m.AmountKg))
	}
	return &PaintReplay{
		PaintId:        paint.ID,
		PaintName:      paint.Name,
		InitialStockKg: paint.InitialStockKg,
		MovementCount:  len(movements),
		ReplayedKg:     total,
		StockKg:        paint.StockKg,
		Consistent:     total.Equal(paint.StockKg) && !paint.StockKg.IsNegative(),
	}
}

// VerifyPaintLedger replays every paint.
func VerifyPaintLedger(ctx context.Context) ([]*PaintReplay, error) {
	paints, err := ListPaints(ctx)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	var movements []*PaintMovement
	if err := db.WithContext(ctx).Find(&movements).Error; err != nil {
		return nil, err
	}
	byPaint := map[string][]*PaintMovement{}
	for _, m := range movements {
		byPaint[m.PaintId] = append(byPaint[m.PaintId], m)
	}
	results := make([]*PaintReplay, 0, len(paints))
	for _, p := range paints {
		results = append(results, replay(p, byPaint[p.ID]))
	}
	return results, nil
}
