package enums

import "fmt"

// PaymentReason is the stable code attached to every payment attempt outcome.
type PaymentReason string

const (
	PaymentReasonVerified         PaymentReason = "VERIFIED"
	PaymentReasonAlreadyPaid      PaymentReason = "ALREADY_PAID"
	PaymentReasonAmountMismatch   PaymentReason = "AMOUNT_MISMATCH"
	PaymentReasonDuplicateSlip    PaymentReason = "DUPLICATE_SLIP"
	PaymentReasonInvalidQR        PaymentReason = "INVALID_QR"
	PaymentReasonWrongReceiver    PaymentReason = "WRONG_RECEIVER"
	PaymentReasonUnreadable       PaymentReason = "UNREADABLE_EVIDENCE"
	PaymentReasonInconclusive     PaymentReason = "VERIFICATION_INCONCLUSIVE"
	PaymentReasonPaymentFailed    PaymentReason = "PAYMENT_FAILED"
	PaymentReasonOrderNotPayable  PaymentReason = "ORDER_NOT_PAYABLE"
	PaymentReasonUnsupportedMedia PaymentReason = "UNSUPPORTED_MEDIA"
)

var paymentReasonMessages = map[PaymentReason]string{
	PaymentReasonVerified:         "ยืนยันการชำระเงินเรียบร้อยแล้ว",
	PaymentReasonAlreadyPaid:      "คำสั่งซื้อนี้ชำระเงินเรียบร้อยแล้ว",
	PaymentReasonAmountMismatch:   "ยอดเงินในสลิปไม่ตรงกับยอดคำสั่งซื้อ",
	PaymentReasonDuplicateSlip:    "สลิปนี้ถูกใช้ไปแล้ว",
	PaymentReasonInvalidQR:        "ไม่พบ QR Code ที่ถูกต้องในสลิป",
	PaymentReasonWrongReceiver:    "บัญชีผู้รับเงินไม่ถูกต้อง",
	PaymentReasonUnreadable:       "ไม่สามารถอ่านสลิปได้ กรุณาอัปโหลดรูปที่ชัดเจน",
	PaymentReasonInconclusive:     "ยังไม่สามารถตรวจสอบสลิปได้ กรุณาลองใหม่อีกครั้ง",
	PaymentReasonPaymentFailed:    "การชำระเงินไม่สำเร็จ",
	PaymentReasonOrderNotPayable:  "คำสั่งซื้อนี้ไม่อยู่ในสถานะรอชำระเงิน",
	PaymentReasonUnsupportedMedia: "รองรับเฉพาะไฟล์รูปภาพ JPEG หรือ PNG",
}

func (r PaymentReason) String() string {
	return string(r)
}

// Message returns the customer-facing (Thai) explanation for the reason.
func (r PaymentReason) Message() string {
	if msg, ok := paymentReasonMessages[r]; ok {
		return msg
	}
	return paymentReasonMessages[PaymentReasonInconclusive]
}

func (r PaymentReason) IsValid() bool {
	_, ok := paymentReasonMessages[r]
	return ok
}

func ParsePaymentReason(value string) (PaymentReason, error) {
	candidate := PaymentReason(value)
	if candidate.IsValid() {
		return candidate, nil
	}
	return "", fmt.Errorf("invalid payment reason %q", value)
}
