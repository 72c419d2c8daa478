package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Ошибки, которые контроллеры сопоставляют с HTTP-статусами через errors.Is
var (
	ErrNotFound                   = errors.New("запись не найдена")
	ErrValidation                 = errors.New("ошибка валидации")
	ErrMemberInactive             = errors.New("участник не активен")
	ErrInvalidStatus              = errors.New("операция недопустима в текущем статусе")
	ErrInsufficientSavings        = errors.New("недостаточно сбережений")
	ErrActiveLoanExists           = errors.New("у участника есть непогашенный заем")
	ErrRepaymentTooSmall          = errors.New("сумма платежа меньше суммы взноса")
	ErrNoUnpaidInstallments       = errors.New("нет неоплаченных взносов")
	ErrDividendAlreadyDistributed = errors.New("дивиденды за этот год уже распределены")
	ErrNoShareValue               = errors.New("нет одобренных паев для распределения")
	ErrCatchUpFailed              = errors.New("не удалось провести погашение задолженности")
	ErrDuplicate                  = errors.New("запись уже существует")
)

// notFound оборачивает ErrNotFound с названием сущности
func notFound(entity string, id uint) error {
	return fmt.Errorf("%s #%d: %w", entity, id, ErrNotFound)
}

// adminRef превращает id сотрудника в nullable ссылку, 0 - операция без сотрудника
func adminRef(adminID uint) *uint {
	if adminID == 0 {
		return nil
	}
	return &adminID
}

// wrapLookup превращает gorm.ErrRecordNotFound в ErrNotFound, остальные ошибки оборачивает
func wrapLookup(err error, entity string, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound(entity, id)
	}
	return fmt.Errorf("ошибка при получении записи %s #%d: %w", entity, id, err)
}
