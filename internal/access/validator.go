// Package access проверяет право субъекта на отмену заказа и услуг.
// Ожидаемые отказы выражаются структурированным Decision, а не ошибками,
// чтобы оркестратор ветвился без обработки исключительных путей.
package access

import (
	log "github.com/sirupsen/logrus"

	"github.com/travelmesh/acs/internal/domain"
)

// Decision — результат одной проверки доступа или статуса.
type Decision struct {
	Allowed bool
	Code    string
	Reason  string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(code, reason string) Decision {
	return Decision{Allowed: false, Code: code, Reason: reason}
}

// Validator резолвит заказ и применяет ролевые правила и предусловия статусов.
type Validator struct {
	orders   domain.OrderRepository
	products domain.ProductRepository
	logger   *log.Entry
}

// NewValidator создаёт валидатор доступа.
func NewValidator(orders domain.OrderRepository, products domain.ProductRepository, logger *log.Entry) *Validator {
	if logger == nil {
		logger = log.New().WithField("component", "access")
	}
	return &Validator{
		orders:   orders,
		products: products,
		logger:   logger,
	}
}

// ResolveOrder находит заказ по идентификатору и проверяет доступ субъекта.
// Клиентский запрос без email отклоняется до любого обращения к хранилищу.
func (v *Validator) ResolveOrder(ident domain.OrderIdentifier, principal domain.Principal) (domain.Order, Decision) {
	if principal.Role == domain.RoleCustomer && ident.Email == "" {
		return domain.Order{}, deny(domain.CodeEmailRequired, domain.ErrEmailRequired.Error())
	}

	order, err := v.orders.FindByIdentifier(ident)
	if err != nil {
		v.logger.WithError(err).WithField("pnr", ident.PNR).Debug("order lookup failed")
		return domain.Order{}, deny(domain.CodeOrderNotFound, "order not found")
	}

	if d := v.checkRole(order, principal); !d.Allowed {
		return domain.Order{}, d
	}

	return order, allow()
}

// checkRole применяет ролевые правила доступа к заказу.
// Партнёрская роль проходит без проверки принадлежности — правило
// перенесено как есть.
func (v *Validator) checkRole(order domain.Order, principal domain.Principal) Decision {
	switch principal.Role {
	case domain.RoleAdmin, domain.RoleCustomerService, domain.RoleSystem:
		return allow()
	case domain.RolePartner:
		return allow()
	case domain.RoleCustomer:
		if principal.Email != "" && principal.Email == order.CustomerEmail {
			return allow()
		}
		return deny(domain.CodeAccessDenied, "order does not belong to the requesting customer")
	default:
		return deny(domain.CodeAccessDenied, "unknown role")
	}
}

// CheckProductOwnership проверяет, что услуга принадлежит резолвленному
// заказу. Чужая услуга маскируется под отсутствующую, чтобы не
// раскрывать существование идентификатора.
func (v *Validator) CheckProductOwnership(order domain.Order, product domain.Product) Decision {
	if product.OrderID == order.ID {
		return allow()
	}
	v.logger.WithFields(log.Fields{
		"order_id":   order.ID,
		"product_id": product.ID,
	}).Warn("product does not belong to the resolved order")
	return deny(domain.CodeProductNotFound, "product not found")
}

// CheckOrderStatus проверяет, что заказ ещё может быть отменён.
func (v *Validator) CheckOrderStatus(order domain.Order) Decision {
	if order.Status.IsCancellable() {
		return allow()
	}
	return deny(domain.CodeOrderStatusInvalid, "order status "+string(order.Status)+" does not allow cancellation")
}

// CheckProductStatus проверяет, что услуга ещё может быть отменена.
func (v *Validator) CheckProductStatus(product domain.Product) Decision {
	if product.Status.IsCancellable() {
		return allow()
	}
	return deny(domain.CodeProductStatusInvalid, "product status "+string(product.Status)+" does not allow cancellation")
}
