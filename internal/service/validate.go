package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chiwei-platform/phost/internal/domain"
	"github.com/chiwei-platform/phost/internal/metrics"
	"github.com/go-playground/validator/v10"
)

// requestValidate 校验请求结构体上的 validate tag；领域规则由 domain 包的校验函数负责。
var requestValidate = validator.New(validator.WithRequiredStructEnabled())

func validateRequest(req any) error {
	err := requestValidate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s failed %q", strings.ToLower(fe.Field()), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, strings.Join(fields, "; "))
	}
	return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
}

// observe 记录一次生命周期操作的耗时与结果，配合 defer 使用。
func observe(op string, start time.Time, err *error) {
	outcome := metrics.OutcomeSuccess
	if *err != nil {
		outcome = metrics.OutcomeFailure
	}
	metrics.LifecycleOperations.WithLabelValues(op, outcome).Inc()
	metrics.LifecycleDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
